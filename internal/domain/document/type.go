package document

// Type identifies a warehouse document type handled by the engine's callers.
// The engine only cares about two aspects of a type: which status
// transitions it allows (some types forbid partial issue) and which approval
// brackets apply to it.
type Type string

const (
	// TypeMaterialIssue is a material issue requisition voucher
	TypeMaterialIssue Type = "mirv"
	// TypeMaterialReturn is a material return voucher (returned stock re-enters as surplus)
	TypeMaterialReturn Type = "mrv"
	// TypeGoodsReceipt is a goods receipt note for incoming supplier deliveries
	TypeGoodsReceipt Type = "grn"
	// TypeTransfer moves stock between warehouses; it ships whole or not at all
	TypeTransfer Type = "transfer"
	// TypeWriteOff retires damaged or obsolete stock; partial write-offs are not allowed
	TypeWriteOff Type = "write_off"
)

// IsValid checks if the type is a known document type
func (t Type) IsValid() bool {
	switch t {
	case TypeMaterialIssue, TypeMaterialReturn, TypeGoodsReceipt, TypeTransfer, TypeWriteOff:
		return true
	}
	return false
}

// String returns the string representation
func (t Type) String() string {
	return string(t)
}

// AllowsPartialIssue reports whether the type may pass through the
// partially_issued status. Transfers and write-offs complete in one step.
func (t Type) AllowsPartialIssue() bool {
	switch t {
	case TypeTransfer, TypeWriteOff:
		return false
	}
	return true
}

// AllTypes returns all known document types
func AllTypes() []Type {
	return []Type{
		TypeMaterialIssue,
		TypeMaterialReturn,
		TypeGoodsReceipt,
		TypeTransfer,
		TypeWriteOff,
	}
}
