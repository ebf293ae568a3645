package schema

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Fingerprint returns a structural hash of the schema: two schemas that are
// Equal always produce the same Fingerprint, independent of object-schema
// or property ordering. It is not cryptographically secure and is meant
// only as a fast pre-check before doing a full Compare — e.g. to skip
// re-diffing a file that's already known to match the target (see
// pkg/migrate.Driver's use of it to short-circuit a no-op UpdateSchema).
//
// Two different schemas may never collide in practice but are not
// guaranteed not to; callers must still fall back to Equal/Compare for
// anything that matters.
func (s Schema) Fingerprint() uint64 {
	names := make([]string, len(s.objects))
	for i, o := range s.objects {
		names[i] = o.Name
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		o, _ := s.Find(name)
		writeObjectSignature(&b, o)
	}

	h := murmur3.New64()
	h.Write([]byte(b.String()))
	return h.Sum64()
}

func writeObjectSignature(b *strings.Builder, o *ObjectSchema) {
	b.WriteString("obj:")
	b.WriteString(o.Name)
	b.WriteString(";pk:")
	b.WriteString(o.PrimaryKey)
	b.WriteByte(';')

	writePropertySignatures(b, o.PersistedProperties)
	writePropertySignatures(b, o.ComputedProperties)
}

func writePropertySignatures(b *strings.Builder, props []Property) {
	sigs := make([]string, len(props))
	for i, p := range props {
		var pb strings.Builder
		pb.WriteString(p.Name)
		pb.WriteByte(':')
		pb.WriteString(p.Type.String())
		pb.WriteByte(':')
		pb.WriteString(p.ObjectType)
		pb.WriteByte(':')
		pb.WriteString(p.LinkOriginProperty)
		pb.WriteByte(':')
		pb.WriteString(strconv.FormatBool(p.IsPrimary))
		pb.WriteByte(':')
		pb.WriteString(strconv.FormatBool(p.EffectiveIndexed()))
		pb.WriteByte(':')
		pb.WriteString(strconv.FormatBool(p.IsNullable))
		sigs[i] = pb.String()
	}
	sort.Strings(sigs)
	for _, sig := range sigs {
		b.WriteString(sig)
		b.WriteByte('|')
	}
}
