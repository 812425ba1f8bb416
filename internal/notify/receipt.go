package notify

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"

	"cedra_checkout/internal/models"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

//go:embed templates/receipt.html
var templatesFS embed.FS

var receiptTmpl = template.Must(template.New("receipt.html").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return "₹" + d.StringFixed(2) },
}).ParseFS(templatesFS, "templates/receipt.html"))

type receiptData struct {
	Order      models.Order
	QRCode     template.URL
	ReceiptURL string
}

// QRCode encode l'identifiant métier de la commande en PNG, prêt pour <img src="...">.
func QRCode(businessOrderID string) (template.URL, error) {
	png, err := qrcode.Encode(businessOrderID, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("génération QR: %w", err)
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)), nil
}

// RenderReceipt produit le reçu HTML ; receiptURL peut être vide.
func RenderReceipt(order models.Order, receiptURL string) ([]byte, error) {
	qr, err := QRCode(order.BusinessOrderID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, receiptData{Order: order, QRCode: qr, ReceiptURL: receiptURL}); err != nil {
		return nil, fmt.Errorf("rendu du reçu: %w", err)
	}
	return buf.Bytes(), nil
}
