// mockitn sends a signed, PayFast-shaped ITN post to a local webhook
// endpoint. Useful for exercising the reconciliation path without a real
// gateway round trip.
package main

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

func main() {
	target := flag.String("url", "http://localhost:8080/webhooks/payfast", "Webhook URL")
	passphrase := flag.String("passphrase", os.Getenv("PAYFAST_PASSPHRASE"), "PayFast passphrase")
	checkoutID := flag.String("checkout-id", "pf_"+randomHex(8), "m_payment_id of the target order")
	orderNumber := flag.String("order", "", "Order number (custom_str1)")
	status := flag.String("status", "COMPLETE", "payment_status (COMPLETE, FAILED, CANCELLED, EXPIRED)")
	amount := flag.String("amount", "450.00", "amount_gross")
	dryRun := flag.Bool("dry-run", false, "Only print the signed body, don't send")

	flag.Parse()

	fields := [][2]string{
		{"m_payment_id", *checkoutID},
		{"pf_payment_id", "1089" + randomHex(4)},
		{"payment_status", *status},
		{"amount_gross", *amount},
		{"custom_str1", *orderNumber},
	}

	var b strings.Builder
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f[1]))
	}
	signBase := b.String()
	if *passphrase != "" {
		signBase += "&passphrase=" + url.QueryEscape(*passphrase)
	}
	sum := md5.Sum([]byte(signBase))
	body := b.String() + "&signature=" + hex.EncodeToString(sum[:])

	fmt.Printf("Body: %s\n", body)

	if *dryRun {
		fmt.Println("\n[DRY RUN] Not sending request")
		return
	}

	fmt.Printf("\nSending to %s...\n", *target)
	resp, err := http.Post(*target, "application/x-www-form-urlencoded", strings.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %d\n", resp.StatusCode)
	fmt.Printf("Response: %s\n", string(respBody))

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

func randomHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
