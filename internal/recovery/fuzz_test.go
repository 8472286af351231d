package recovery

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/rules"
)

var allKinds = map[ErrorKind]bool{
	KindElementNotFound: true, KindElementNotVisible: true, KindElementDisabled: true,
	KindTimeout: true, KindPageNotLoaded: true, KindSelectorInvalid: true,
	KindNetworkError: true, KindUnknown: true,
}

// FuzzClassifyAndCorrect checks that classification is total and that every correction
// leaves the caller's action untouched.
func FuzzClassifyAndCorrect(f *testing.F) {
	f.Add([]byte("element not found: #submit"))
	f.Add([]byte("network connection refused"))

	classifier := NewClassifier(rules.Table[ErrorKind]{})
	policy := NewPolicy()

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		msg, err := consumer.GetString()
		if err != nil {
			return
		}
		selector, err := consumer.GetString()
		if err != nil {
			return
		}
		attempt, err := consumer.GetInt()
		if err != nil {
			return
		}
		if attempt < 0 {
			attempt = -attempt
		}
		attempt %= 6

		kind := classifier.Classify(msg)
		if !allKinds[kind] {
			t.Fatalf("Classify(%q) returned unknown kind %q", msg, kind)
		}

		orig := action.Click(selector)
		before := orig.Clone()
		_, corr := policy.Correct(kind, attempt, 3, orig)
		if corr == nil {
			t.Fatalf("nil correction for %s at attempt %d", kind, attempt)
		}
		if orig.Selector != before.Selector || orig.RecoveryReason != before.RecoveryReason || orig.TimeoutMs != before.TimeoutMs {
			t.Fatalf("correction mutated the caller's action")
		}
	})
}
