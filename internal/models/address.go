package models

import "time"

// Address est une adresse de livraison appartenant à un utilisateur.
// Au plus une adresse par utilisateur a IsDefault = true.
type Address struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	FullName  string    `json:"fullName" validate:"required"`
	Phone     string    `json:"phone" validate:"omitempty,len=10,numeric"`
	Flat      string    `json:"flat" validate:"required"`
	Area      string    `json:"area"`
	Landmark  string    `json:"landmark,omitempty"`
	Pincode   string    `json:"pincode" validate:"required,len=6,numeric"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// AddressUpdate décrit une modification partielle (PUT /api/addresses/:id).
type AddressUpdate struct {
	FullName  *string `json:"fullName,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Flat      *string `json:"flat,omitempty"`
	Area      *string `json:"area,omitempty"`
	Landmark  *string `json:"landmark,omitempty"`
	Pincode   *string `json:"pincode,omitempty"`
	City      *string `json:"city,omitempty"`
	State     *string `json:"state,omitempty"`
	IsDefault *bool   `json:"isDefault,omitempty"`
}

// Apply copie les champs renseignés de u sur a.
func (u AddressUpdate) Apply(a *Address) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&a.FullName, u.FullName)
	set(&a.Phone, u.Phone)
	set(&a.Flat, u.Flat)
	set(&a.Area, u.Area)
	set(&a.Landmark, u.Landmark)
	set(&a.Pincode, u.Pincode)
	set(&a.City, u.City)
	set(&a.State, u.State)
	if u.IsDefault != nil {
		a.IsDefault = *u.IsDefault
	}
}

// OnlyDefaultFlag indique si la mise à jour ne touche que le drapeau par défaut.
func (u AddressUpdate) OnlyDefaultFlag() bool {
	return u.IsDefault != nil && u.FullName == nil && u.Phone == nil && u.Flat == nil &&
		u.Area == nil && u.Landmark == nil && u.Pincode == nil && u.City == nil && u.State == nil
}
