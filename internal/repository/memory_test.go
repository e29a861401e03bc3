package repository

import "testing"

func TestMemoryImportJobRepository(t *testing.T) {
	runImportJobContract(t, func(*testing.T) ImportJobRepository {
		return NewMemoryImportJobRepository()
	})
}

func TestMemorySaleRepository(t *testing.T) {
	runSaleContract(t, func(*testing.T) SaleRepository {
		return NewMemorySaleRepository()
	})
}
