package receipt

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("LineItem", func() {
	price := decimal.RequireFromString("19.5")

	It("rounds money to two places", func() {
		item, err := NewLineItem("27/08/2025", "Leche", 2, decimal.RequireFromString("1.005"), decimal.RequireFromString("0.111"))
		Expect(err).NotTo(HaveOccurred())
		Expect(item.UnitPrice().String()).To(Equal("1.01"))
		Expect(item.Discount().String()).To(Equal("0.11"))
	})

	It("computes the line total", func() {
		item, err := NewLineItem("27/08/2025", "Leche", 2, price, decimal.RequireFromString("1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(item.LineTotal().Equal(decimal.RequireFromString("38"))).To(BeTrue())
	})

	DescribeTable("rejects negative values",
		func(quantity int, unitPrice, discount string) {
			_, err := NewLineItem("27/08/2025", "Leche", quantity, decimal.RequireFromString(unitPrice), decimal.RequireFromString(discount))
			Expect(err).To(MatchError(ErrInvalidLineItem))
		},
		Entry("quantity", -1, "1", "0"),
		Entry("unit price", 1, "-0.01", "0"),
		Entry("discount", 1, "1", "-2"),
	)

	It("allows zero quantity and price", func() {
		_, err := NewLineItem("27/08/2025", "", 0, decimal.Zero, decimal.Zero)
		Expect(err).NotTo(HaveOccurred())
	})

	It("encodes to JSON", func() {
		item, err := NewLineItem("27/08/2025", "Leche", 2, price, decimal.Zero)
		Expect(err).NotTo(HaveOccurred())

		data, err := json.Marshal(item)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(MatchJSON(`{
			"date": "27/08/2025",
			"product": "Leche",
			"quantity": 2,
			"unit_price": "19.5",
			"discount": "0",
			"line_total": "39"
		}`))
	})
})
