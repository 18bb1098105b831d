package mapper

import (
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Operation is one low-level store operation, a tagged union carrying the
// native request shape for its kind. Exactly one field is set.
type Operation struct {
	Put    *types.Put
	Update *types.Update
	Delete *types.Delete
	Get    *types.Get

	// lock-record provenance, used to map conditional failures back to the
	// violated constraint
	lockEntity string
	lockAttr   string
}

// IsLock reports whether the operation targets a unique-constraint lock
// record rather than an entity's main record.
func (o Operation) IsLock() bool { return o.lockEntity != "" }

// writeItem converts the operation to the transactional write shape.
// Get operations have no write form and yield a zero value.
func (o Operation) writeItem() types.TransactWriteItem {
	return types.TransactWriteItem{
		Put:    o.Put,
		Update: o.Update,
		Delete: o.Delete,
	}
}

// getItem converts the operation to the transactional read shape.
func (o Operation) getItem() types.TransactGetItem {
	return types.TransactGetItem{Get: o.Get}
}

// stringAttr wraps a string in its attribute-value form.
func stringAttr(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

// stringValue extracts a key-safe string rendering of a scalar attribute
// value. Non-scalar values report false.
func stringValue(av types.AttributeValue) (string, bool) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, true
	case *types.AttributeValueMemberN:
		return v.Value, true
	case *types.AttributeValueMemberBOOL:
		return strconv.FormatBool(v.Value), true
	default:
		return "", false
	}
}

// stringValues renders every scalar attribute of an item for key
// interpolation. Missing or non-scalar attributes are simply absent, which
// the interpolator reports as a missing-attribute failure if referenced.
func stringValues(item Item) map[string]string {
	values := make(map[string]string, len(item))
	for name, av := range item {
		if s, ok := stringValue(av); ok {
			values[name] = s
		}
	}
	return values
}
