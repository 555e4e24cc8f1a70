package requests

import "github.com/holiman/uint256"

// DeliveryRequest is a demand for moving material between two regions.
type DeliveryRequest struct {
	ID              uint64
	Requester       [20]byte
	DemanderName    string
	Origin          string
	Destination     string
	MaterialID      string
	Quantity        uint64
	Deadline        uint64
	MaxPrice        *uint256.Int
	CollateralStake *uint256.Int
	Notes           string
	// Open is set on creation and never cleared by this module.
	Open      bool
	CreatedAt uint64
}

// Clone returns a deep copy of the request.
func (r *DeliveryRequest) Clone() *DeliveryRequest {
	if r == nil {
		return nil
	}
	clone := *r
	clone.MaxPrice = cloneAmount(r.MaxPrice)
	clone.CollateralStake = cloneAmount(r.CollateralStake)
	return &clone
}

// CreateInput carries the caller supplied request fields.
type CreateInput struct {
	DemanderName    string
	Origin          string
	Destination     string
	MaterialID      string
	Quantity        uint64
	Deadline        uint64
	MaxPrice        *uint256.Int
	CollateralStake *uint256.Int
	Notes           string
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
