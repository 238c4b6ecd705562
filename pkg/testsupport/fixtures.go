// Package testsupport provides the domain fixtures and the in-memory
// tenant-partitioned repository the protocol's tests and examples run
// against.
package testsupport

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Product is the product-catalog fixture record.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID           string  `bun:"id,pk" json:"id"`
	TenantID     string  `bun:"tenant_id" json:"tenantId"`
	Name         string  `bun:"name" json:"name"`
	Status       string  `bun:"status" json:"status"`
	Price        float64 `bun:"price" json:"price"`
	RelatedCount int     `bun:"related_count" json:"relatedCount"`
}

func (p Product) RecordID() string { return p.ID }

func (p Product) Field(name string) (any, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "tenant_id":
		return p.TenantID, true
	case "name":
		return p.Name, true
	case "status":
		return p.Status, true
	case "price":
		return p.Price, true
	case "related_count":
		return p.RelatedCount, true
	default:
		return nil, false
	}
}

// NewProduct mints a product under the tenant.
func NewProduct(tenantID, name string, price float64) Product {
	return Product{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
		Status:   "active",
		Price:    price,
	}
}

// Proposal is the proposal fixture record.
type Proposal struct {
	bun.BaseModel `bun:"table:proposals,alias:pr"`

	ID           string  `bun:"id,pk" json:"id"`
	TenantID     string  `bun:"tenant_id" json:"tenantId"`
	Title        string  `bun:"title" json:"title"`
	Status       string  `bun:"status" json:"status"`
	Value        float64 `bun:"value" json:"value"`
	SectionCount int     `bun:"section_count" json:"sectionCount"`
}

func (p Proposal) RecordID() string { return p.ID }

func (p Proposal) Field(name string) (any, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "tenant_id":
		return p.TenantID, true
	case "title":
		return p.Title, true
	case "status":
		return p.Status, true
	case "value":
		return p.Value, true
	case "section_count":
		return p.SectionCount, true
	default:
		return nil, false
	}
}

// NewProposal mints a draft proposal under the tenant.
func NewProposal(tenantID, title string, value float64) Proposal {
	return Proposal{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Title:    title,
		Status:   "draft",
		Value:    value,
	}
}

// Customer is the customer fixture record.
type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	ID           string `bun:"id,pk" json:"id"`
	TenantID     string `bun:"tenant_id" json:"tenantId"`
	Name         string `bun:"name" json:"name"`
	Email        string `bun:"email" json:"email"`
	Tier         string `bun:"tier" json:"tier"`
	ContactCount int    `bun:"contact_count" json:"contactCount"`
}

func (c Customer) RecordID() string { return c.ID }

func (c Customer) Field(name string) (any, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "tenant_id":
		return c.TenantID, true
	case "name":
		return c.Name, true
	case "email":
		return c.Email, true
	case "tier":
		return c.Tier, true
	case "contact_count":
		return c.ContactCount, true
	default:
		return nil, false
	}
}

// NewCustomer mints a standard-tier customer under the tenant.
func NewCustomer(tenantID, name, email string) Customer {
	return Customer{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
		Email:    email,
		Tier:     "standard",
	}
}
