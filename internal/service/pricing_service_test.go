package service

import (
	"testing"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type PricingTestSuite struct {
	suite.Suite
	pricing *PricingService
	taxRate decimal.Decimal
}

func (s *PricingTestSuite) SetupTest() {
	s.pricing = NewPricingService()
	s.taxRate = decimal.NewFromFloat(0.05)
}

func TestPricingSuite(t *testing.T) {
	suite.Run(t, new(PricingTestSuite))
}

func (s *PricingTestSuite) TestComputeTotals() {
	items := []model.OrderItem{
		{MenuItemID: "rice-chicken", Quantity: 2, UnitPrice: decimal.NewFromInt(1000)},
		{MenuItemID: "ndole", Quantity: 1, UnitPrice: decimal.NewFromInt(1500)},
	}

	totals, err := s.pricing.ComputeTotals(items, decimal.NewFromInt(500), decimal.Zero, s.taxRate)
	require.NoError(s.T(), err)
	require.True(s.T(), decimal.NewFromInt(3500).Equal(totals.Subtotal), "小計應為3500")
	require.True(s.T(), decimal.NewFromInt(175).Equal(totals.TaxAmount), "稅額應為175")
	require.True(s.T(), decimal.NewFromInt(4175).Equal(totals.TotalAmount), "總額應為4175")
}

// 項目順序不影響金額
func (s *PricingTestSuite) TestComputeTotalsOrderInvariant() {
	items := []model.OrderItem{
		{MenuItemID: "a", Quantity: 3, UnitPrice: decimal.NewFromFloat(333.33)},
		{MenuItemID: "b", Quantity: 1, UnitPrice: decimal.NewFromFloat(1250.50)},
		{MenuItemID: "c", Quantity: 2, UnitPrice: decimal.NewFromInt(700)},
	}
	reversed := []model.OrderItem{items[2], items[1], items[0]}

	a, err := s.pricing.ComputeTotals(items, decimal.Zero, decimal.Zero, s.taxRate)
	require.NoError(s.T(), err)
	b, err := s.pricing.ComputeTotals(reversed, decimal.Zero, decimal.Zero, s.taxRate)
	require.NoError(s.T(), err)
	require.True(s.T(), a.TotalAmount.Equal(b.TotalAmount), "換順序計算結果應相同")
	require.True(s.T(), a.TaxAmount.Equal(b.TaxAmount))
}

func (s *PricingTestSuite) TestDiscountExceedsTotal() {
	items := []model.OrderItem{
		{MenuItemID: "a", Quantity: 1, UnitPrice: decimal.NewFromInt(1000)},
	}

	_, err := s.pricing.ComputeTotals(items, decimal.Zero, decimal.NewFromInt(2000), s.taxRate)
	require.ErrorIs(s.T(), err, ErrNegativeTotal, "折扣超過總額應回錯誤而不是負數")
}

func (s *PricingTestSuite) TestNegativeDiscount() {
	items := []model.OrderItem{
		{MenuItemID: "a", Quantity: 1, UnitPrice: decimal.NewFromInt(1000)},
	}

	_, err := s.pricing.ComputeTotals(items, decimal.Zero, decimal.NewFromInt(-100), s.taxRate)
	require.ErrorIs(s.T(), err, ErrNegativeDiscount)
}

func (s *PricingTestSuite) TestZeroTaxRate() {
	items := []model.OrderItem{
		{MenuItemID: "a", Quantity: 2, UnitPrice: decimal.NewFromInt(1000)},
	}

	totals, err := s.pricing.ComputeTotals(items, decimal.Zero, decimal.Zero, decimal.Zero)
	require.NoError(s.T(), err)
	require.True(s.T(), totals.TaxAmount.IsZero())
	require.True(s.T(), decimal.NewFromInt(2000).Equal(totals.TotalAmount))
}

func (s *PricingTestSuite) TestNegativeTaxRate() {
	items := []model.OrderItem{
		{MenuItemID: "a", Quantity: 1, UnitPrice: decimal.NewFromInt(1000)},
	}

	_, err := s.pricing.ComputeTotals(items, decimal.Zero, decimal.Zero, decimal.NewFromFloat(-0.05))
	require.ErrorIs(s.T(), err, ErrInvalidTaxRate)
}
