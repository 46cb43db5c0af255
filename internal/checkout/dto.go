// AngelaMos | 2026
// dto.go

package checkout

// CreateCheckoutRequest deliberately has no user field; the buyer is always
// the authenticated caller.
type CreateCheckoutRequest struct {
	VariantID string `json:"variant_id" validate:"required,max=64"`
	Email     string `json:"email"      validate:"omitempty,email,max=255"`
}

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}
