package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-checkout-reconciler/internal/config"
	"github.com/imrishuroy/go-checkout-reconciler/internal/gateway"
	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
)

type signParams struct {
	provider      string
	correlationID string
	amount        int64
	failed        bool
	transactionID string
}

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Work with provider notifications",
	}

	var p signParams
	sign := &cobra.Command{
		Use:   "sign",
		Short: "Print a notification signed with the configured provider secret",
		Long: `Print a provider notification signed with the configured secret, for
replaying payment results against a local API.

VNPay prints the query string for GET /webhooks/vnpay; payOS prints the JSON
body for POST /webhooks/payos.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			out, err := signWebhook(cfg, p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	sign.Flags().StringVar(&p.provider, "provider", string(payments.ProviderVNPay), "vnpay or payos")
	sign.Flags().StringVar(&p.correlationID, "correlation", "", "correlation id of the payment intent")
	sign.Flags().Int64Var(&p.amount, "amount", 0, "amount in minor units")
	sign.Flags().BoolVar(&p.failed, "failed", false, "sign a failed payment result")
	sign.Flags().StringVar(&p.transactionID, "transaction", "", "provider transaction id (defaults to a timestamp)")
	_ = sign.MarkFlagRequired("correlation")
	_ = sign.MarkFlagRequired("amount")

	cmd.AddCommand(sign)
	return cmd
}

func signWebhook(cfg *config.Config, p signParams) (string, error) {
	if p.transactionID == "" {
		p.transactionID = strconv.FormatInt(time.Now().Unix(), 10)
	}
	provider, err := payments.ParseProvider(p.provider)
	if err != nil {
		return "", err
	}

	switch provider {
	case payments.ProviderVNPay:
		if cfg.VNPay.HashSecret == "" {
			return "", fmt.Errorf("VNPAY_HASH_SECRET is not set")
		}
		code, status := "00", "00"
		if p.failed {
			code, status = "24", "02"
		}
		q := url.Values{}
		q.Set("vnp_TmnCode", cfg.VNPay.TmnCode)
		q.Set("vnp_TxnRef", p.correlationID)
		q.Set("vnp_Amount", strconv.FormatInt(p.amount*100, 10))
		q.Set("vnp_ResponseCode", code)
		q.Set("vnp_TransactionStatus", status)
		q.Set("vnp_TransactionNo", p.transactionID)
		vnp := gateway.NewVNPay(gateway.VNPayConfig{TmnCode: cfg.VNPay.TmnCode, HashSecret: cfg.VNPay.HashSecret}, nil)
		return vnp.SignQuery(q).Encode(), nil

	case payments.ProviderPayOS:
		if cfg.PayOS.ChecksumKey == "" {
			return "", fmt.Errorf("PAYOS_CHECKSUM_KEY is not set")
		}
		code, desc := "00", "success"
		if p.failed {
			code, desc = "01", "failed"
		}
		var orderCode any = p.correlationID
		if n, err := strconv.ParseInt(p.correlationID, 10, 64); err == nil {
			orderCode = n
		}
		data := map[string]any{
			"orderCode": orderCode,
			"amount":    p.amount,
			"code":      code,
			"desc":      desc,
			"reference": p.transactionID,
		}
		pos := gateway.NewPayOS(gateway.PayOSConfig{ChecksumKey: cfg.PayOS.ChecksumKey}, nil)
		body, err := json.Marshal(map[string]any{
			"code":      code,
			"desc":      desc,
			"success":   !p.failed,
			"data":      data,
			"signature": pos.SignData(data),
		})
		if err != nil {
			return "", err
		}
		return string(body), nil
	}
	return "", fmt.Errorf("provider %s does not send notifications", provider)
}
