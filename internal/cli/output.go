package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/receipt-desk/internal/domain/directory"
	"github.com/eshaffer321/receipt-desk/internal/domain/receipt"
)

// PrintHeader prints the application header
func PrintHeader(w io.Writer, command, partnerName string) {
	if partnerName == "" {
		fmt.Fprintf(w, "receipt-desk: %s\n", command)
		return
	}
	fmt.Fprintf(w, "receipt-desk: %s (%s)\n", command, partnerName)
}

// PrintDraft prints a reconciled draft the way the review page shows it.
func PrintDraft(w io.Writer, draft receipt.OrderRecord) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Order:    %s\n", orNA(draft.OrderID.String()))
	fmt.Fprintf(w, "Date:     %s\n", orNA(draft.OrderDate.String()))
	fmt.Fprintf(w, "Customer: %s", orNA(draft.CustomerName.String()))
	if phone := draft.CustomerPhoneNumber.String(); phone != "" {
		fmt.Fprintf(w, " (%s)", phone)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\nItems (%d):\n", len(draft.OrderItems))
	for i, item := range draft.OrderItems {
		fmt.Fprintf(w, "  %2d. %-30s x%-4s %12s\n",
			i+1,
			orNA(item.ItemName.String()),
			orNA(item.Quantity.String()),
			receipt.FormatAmount(item.LineTotal()))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Subtotal:      %s\n", receipt.FormatCurrency(draft.SubtotalAmount))
	fmt.Fprintf(w, "Delivery fees: %s\n", receipt.FormatCurrency(draft.DeliveryFees))
	fmt.Fprintf(w, "Discount:      %s\n", receipt.FormatCurrency(draft.Discount))
	fmt.Fprintf(w, "Total:         %s\n", receipt.FormatCurrency(draft.Total))
}

// PrintCustomers prints the customer list as a table.
func PrintCustomers(w io.Writer, customers []directory.Customer) {
	if len(customers) == 0 {
		fmt.Fprintln(w, "No customers found.")
		return
	}

	fmt.Fprintf(w, "%-8s %-24s %-16s %-7s %-12s %s\n", "ID", "Name", "Phone", "Orders", "Last order", "Partner")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, c := range customers {
		fmt.Fprintf(w, "%-8s %-24s %-16s %-7s %-12s %s\n",
			string(c.ID),
			orNA(c.Name.String()),
			orNA(c.PhoneNumber.String()),
			c.DisplayOrderCount(),
			c.DisplayLastOrderDate(),
			c.DisplayLastPartner())
	}
	fmt.Fprintf(w, "\n%d customer(s)\n", len(customers))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
