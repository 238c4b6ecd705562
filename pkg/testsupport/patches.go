package testsupport

import (
	"fmt"

	"github.com/morabah/posalpro-sync/repository"
)

// NewProductRepository builds the in-memory product repository.
func NewProductRepository() *MemoryRepository[Product] {
	return NewMemoryRepository(ApplyProductPatch)
}

// NewProposalRepository builds the in-memory proposal repository.
func NewProposalRepository() *MemoryRepository[Proposal] {
	return NewMemoryRepository(ApplyProposalPatch)
}

// NewCustomerRepository builds the in-memory customer repository.
func NewCustomerRepository() *MemoryRepository[Customer] {
	return NewMemoryRepository(ApplyCustomerPatch)
}

// ApplyProductPatch folds a patch into a product.
func ApplyProductPatch(current Product, present bool, tenantID, id string, patch repository.Patch) (Product, error) {
	if !present {
		current = Product{ID: id, TenantID: tenantID}
	}
	for field, value := range patch.Fields {
		switch field {
		case "name":
			current.Name = value.(string)
		case "status":
			current.Status = value.(string)
		case "price":
			n, ok := toNumber(value)
			if !ok {
				return Product{}, fmt.Errorf("testsupport: price must be numeric, got %T", value)
			}
			current.Price = n
		case "related_count":
			n, _ := toNumber(value)
			current.RelatedCount = int(n)
		default:
			return Product{}, fmt.Errorf("testsupport: unknown product field %q", field)
		}
	}
	return current, nil
}

// ApplyProposalPatch folds a patch into a proposal.
func ApplyProposalPatch(current Proposal, present bool, tenantID, id string, patch repository.Patch) (Proposal, error) {
	if !present {
		current = Proposal{ID: id, TenantID: tenantID}
	}
	for field, value := range patch.Fields {
		switch field {
		case "title":
			current.Title = value.(string)
		case "status":
			current.Status = value.(string)
		case "value":
			n, ok := toNumber(value)
			if !ok {
				return Proposal{}, fmt.Errorf("testsupport: value must be numeric, got %T", value)
			}
			current.Value = n
		case "section_count":
			n, _ := toNumber(value)
			current.SectionCount = int(n)
		default:
			return Proposal{}, fmt.Errorf("testsupport: unknown proposal field %q", field)
		}
	}
	return current, nil
}

// ApplyCustomerPatch folds a patch into a customer.
func ApplyCustomerPatch(current Customer, present bool, tenantID, id string, patch repository.Patch) (Customer, error) {
	if !present {
		current = Customer{ID: id, TenantID: tenantID}
	}
	for field, value := range patch.Fields {
		switch field {
		case "name":
			current.Name = value.(string)
		case "email":
			current.Email = value.(string)
		case "tier":
			current.Tier = value.(string)
		case "contact_count":
			n, _ := toNumber(value)
			current.ContactCount = int(n)
		default:
			return Customer{}, fmt.Errorf("testsupport: unknown customer field %q", field)
		}
	}
	return current, nil
}
