package types

import (
	"fmt"
	"strings"
)

// AddressSnapshot is the copy of an address frozen onto an order.
type AddressSnapshot struct {
	RecipientName string  `json:"recipient_name" validate:"required"`
	Line1         string  `json:"line1" validate:"required"`
	Line2         *string `json:"line2,omitempty"`
	City          string  `json:"city" validate:"required"`
	State         string  `json:"state" validate:"required"`
	PostalCode    string  `json:"postal_code" validate:"required"`
	Country       string  `json:"country" validate:"omitempty,len=2"`
}

// Validate reports the first missing field.
func (a AddressSnapshot) Validate() error {
	if strings.TrimSpace(a.RecipientName) == "" {
		return fmt.Errorf("address: missing recipient_name")
	}
	if strings.TrimSpace(a.Line1) == "" {
		return fmt.Errorf("address: missing line1")
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("address: missing city")
	}
	if strings.TrimSpace(a.State) == "" {
		return fmt.Errorf("address: missing state")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		return fmt.Errorf("address: missing postal_code")
	}
	return nil
}

// Normalized trims whitespace and defaults the country to US.
func (a AddressSnapshot) Normalized() AddressSnapshot {
	out := a
	out.RecipientName = strings.TrimSpace(a.RecipientName)
	out.Line1 = strings.TrimSpace(a.Line1)
	out.City = strings.TrimSpace(a.City)
	out.State = strings.TrimSpace(a.State)
	out.PostalCode = strings.TrimSpace(a.PostalCode)
	out.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	if out.Country == "" {
		out.Country = "US"
	}
	if a.Line2 != nil {
		line2 := strings.TrimSpace(*a.Line2)
		if line2 == "" {
			out.Line2 = nil
		} else {
			out.Line2 = &line2
		}
	}
	return out
}
