package schema

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_FingerprintReorderInvariance validates that shuffling object
// or property order never changes Fingerprint, mirroring the order
// invariance Equal already guarantees.
func TestProperty_FingerprintReorderInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("reversing property order within an object does not change Fingerprint", prop.ForAll(
		func(names []string) bool {
			if len(names) == 0 {
				return true
			}
			props := make([]Property, len(names))
			for i, n := range names {
				props[i] = Property{Name: n, Type: Int}
			}
			obj := ObjectSchema{Name: "Thing", PersistedProperties: props}

			reversed := make([]Property, len(props))
			for i, p := range props {
				reversed[len(props)-1-i] = p
			}
			objReversed := ObjectSchema{Name: "Thing", PersistedProperties: reversed}

			s1 := New(obj)
			s2 := New(objReversed)
			return s1.Fingerprint() == s2.Fingerprint()
		},
		gen.SliceOfN(5, gen.Identifier()).SuchThat(func(names []string) bool {
			seen := make(map[string]bool, len(names))
			for _, n := range names {
				if seen[n] {
					return false
				}
				seen[n] = true
			}
			return true
		}),
	))

	properties.Property("reversing object order does not change Fingerprint", prop.ForAll(
		func(names []string) bool {
			if len(names) == 0 {
				return true
			}
			objs := make([]ObjectSchema, len(names))
			for i, n := range names {
				objs[i] = ObjectSchema{Name: n, PersistedProperties: []Property{{Name: "v", Type: Int}}}
			}
			reversed := make([]ObjectSchema, len(objs))
			for i, o := range objs {
				reversed[len(objs)-1-i] = o
			}

			s1 := New(objs...)
			s2 := New(reversed...)
			return s1.Fingerprint() == s2.Fingerprint()
		},
		gen.SliceOfN(5, gen.Identifier()).SuchThat(func(names []string) bool {
			seen := make(map[string]bool, len(names))
			for _, n := range names {
				if seen[n] {
					return false
				}
				seen[n] = true
			}
			return true
		}),
	))

	properties.Property("Fingerprint is idempotent across repeated calls", prop.ForAll(
		func(name string) bool {
			obj := ObjectSchema{Name: name, PersistedProperties: []Property{{Name: "v", Type: Int}}}
			s := New(obj)
			return s.Fingerprint() == s.Fingerprint()
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
