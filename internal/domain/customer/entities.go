package customer

// Customer is read-only here: an opaque attribute set owned elsewhere.
type Customer struct {
	ID         string
	Attributes map[string]any
}

// Storage key fields stripped from the attributes handed back to callers.
const (
	AttrPK = "PK"
	AttrSK = "SK"
)

// RecordType is the partition every customer item lives in.
const RecordType = "CUSTOMER"

// Snapshot copies the attributes without the storage key fields.
func (c Customer) Snapshot() map[string]any {
	out := make(map[string]any, len(c.Attributes))
	for k, v := range c.Attributes {
		if k == AttrPK || k == AttrSK {
			continue
		}
		out[k] = v
	}
	return out
}
