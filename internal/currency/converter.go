// Package currency converts transactions into a reporting currency.
package currency

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fuzzy-reconciliation-service/internal/fx"
	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

// RateSource is the subset of fx.Client the converter needs.
type RateSource interface {
	Rate(ctx context.Context, date time.Time, from, to string) (models.FXRate, error)
	BatchRates(ctx context.Context, requests []fx.RateRequest) ([]models.FXRate, error)
}

// Converter converts transactions using a RateSource. Conversion failures
// never drop a transaction: the record keeps its original amount and has
// no rate.
type Converter struct {
	rates           RateSource
	defaultCurrency string
	logger          logger.Logger
}

// NewConverter creates a new Converter. Transactions without a currency
// are treated as defaultCurrency.
func NewConverter(rates RateSource, defaultCurrency string, log logger.Logger) *Converter {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &Converter{
		rates:           rates,
		defaultCurrency: strings.ToUpper(defaultCurrency),
		logger:          logger.OrGlobal(log).WithComponent("currency"),
	}
}

func (c *Converter) currencyOf(t *models.Transaction) string {
	if t.Currency == "" {
		return c.defaultCurrency
	}
	return strings.ToUpper(t.Currency)
}

// Convert expresses t in base. It does not return an error; a failed rate
// lookup is logged and yields the original amount with a nil rate.
func (c *Converter) Convert(ctx context.Context, t *models.Transaction, base string) *models.ConvertedTransaction {
	base = strings.ToUpper(base)
	cur := c.currencyOf(t)

	if cur == base {
		return identity(t, cur)
	}

	rate, err := c.rates.Rate(ctx, t.Date, cur, base)
	if err != nil {
		return c.failed(t, cur, base, err)
	}
	return applied(t, cur, base, rate)
}

// ConvertBatch converts txns into base. Distinct (date, currency) pairs are
// fetched up front in one batch, then each transaction is converted in
// order and onProgress, if set, is called with (done, total) after each.
// Only context cancellation returns an error.
func (c *Converter) ConvertBatch(ctx context.Context, txns []*models.Transaction, base string, onProgress func(done, total int)) ([]*models.ConvertedTransaction, error) {
	base = strings.ToUpper(base)

	var requests []fx.RateRequest
	for _, t := range txns {
		if cur := c.currencyOf(t); cur != base {
			requests = append(requests, fx.RateRequest{Date: t.Date, From: cur, To: base})
		}
	}

	resolved := make(map[string]models.FXRate)
	if len(requests) > 0 {
		rates, err := c.rates.BatchRates(ctx, requests)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		for _, r := range rates {
			resolved[fx.Key(r.Date, r.SourceCurrency, r.TargetCurrency)] = r
		}
		if err != nil {
			c.logger.WithError(err).WithFields(logger.Fields{
				"base_currency": base,
				"pairs":         len(requests),
				"resolved":      len(rates),
			}).Warn("Some exchange rates could not be prefetched")
		}
	}

	out := make([]*models.ConvertedTransaction, len(txns))
	for i, t := range txns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cur := c.currencyOf(t)
		switch {
		case cur == base:
			out[i] = identity(t, cur)
		default:
			key := fx.Key(t.Date, cur, base)
			if r, ok := resolved[key]; ok {
				out[i] = applied(t, cur, base, r)
			} else {
				// already attempted in the batch; no second round-trip
				out[i] = c.failed(t, cur, base,
					errors.RateUnavailable(t.Date.Format(models.DateLayout), cur, base, nil))
			}
		}

		if onProgress != nil {
			onProgress(i+1, len(txns))
		}
	}

	return out, nil
}

func identity(t *models.Transaction, cur string) *models.ConvertedTransaction {
	one := 1.0
	ct := &models.ConvertedTransaction{
		Transaction:     *t,
		ConvertedAmount: t.Amount,
		ConversionRate:  &one,
		BaseCurrency:    cur,
		RateSource:      models.RateSourceNoConversion,
	}
	ct.Currency = cur
	return ct
}

func applied(t *models.Transaction, cur, base string, rate models.FXRate) *models.ConvertedTransaction {
	r := rate.Rate
	ct := &models.ConvertedTransaction{
		Transaction:     *t,
		ConvertedAmount: t.Amount.Mul(decimal.NewFromFloat(r)),
		ConversionRate:  &r,
		BaseCurrency:    base,
		RateSource:      rate.Source,
	}
	ct.Currency = cur
	return ct
}

func (c *Converter) failed(t *models.Transaction, cur, base string, err error) *models.ConvertedTransaction {
	c.logger.WithError(err).WithFields(logger.Fields{
		"transaction":   t.ID,
		"currency":      cur,
		"date":          t.Date.Format(models.DateLayout),
		"base_currency": base,
	}).Warn("Conversion failed, keeping original amount")

	ct := &models.ConvertedTransaction{
		Transaction:     *t,
		ConvertedAmount: t.Amount,
		BaseCurrency:    base,
	}
	ct.Currency = cur
	return ct
}

// SummarizeByCurrency returns absolute amount totals per original currency.
func SummarizeByCurrency(txns []*models.ConvertedTransaction) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, t := range txns {
		totals[t.Currency] = totals[t.Currency].Add(t.Amount.Abs())
	}
	return totals
}
