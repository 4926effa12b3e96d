package reconciler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/internal/parsers"
	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

// Run reconciles bank against accounts. Inputs are never modified. A
// cancelled run returns the context error and no result.
func (s *Service) Run(ctx context.Context, bank, accounts []*models.Transaction, opts RunOptions) (*models.ReconciliationResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	bank = filterByDate(bank, opts.StartDate, opts.EndDate)
	accounts = filterByDate(accounts, opts.StartDate, opts.EndDate)
	if len(bank) == 0 {
		return nil, errors.EmptyInputSet("bank")
	}
	if len(accounts) == 0 {
		return nil, errors.EmptyInputSet("accounts")
	}

	start := time.Now()
	runID := uuid.NewString()
	base := strings.ToUpper(opts.BaseCurrency)
	if base == "" {
		base = s.config.DefaultBaseCurrency
	}

	op := logger.NewOperationLogger("reconcile", s.logger).WithFields(logger.Fields{
		"run_id":        runID,
		"base_currency": base,
		"normalize":     opts.Normalize,
		"semantic":      opts.UseSemantic,
	})

	convertedBank, convertedAccounts, err := s.prepare(ctx, bank, accounts, base, opts)
	if err != nil {
		op.Error(err, "Preparing transactions failed")
		return nil, err
	}

	op.Step("matching")
	tracker := logger.NewProgressTracker(string(PhaseMatch), s.config.ProgressInterval, s.logger)
	result, err := s.engine.WithSemantic(opts.UseSemantic).
		Reconcile(ctx, convertedBank, convertedAccounts, tracker.Callback(phaseCallback(opts.Progress, PhaseMatch)))
	if err != nil {
		op.Error(err, "Matching failed")
		return nil, err
	}

	result.RunID = runID
	result.BaseCurrency = base
	result.ProcessedAt = start.UTC()
	result.Duration = time.Since(start)

	op.Success("Reconciliation completed", logger.Fields{
		"matched":             result.Summary.TotalMatched,
		"unmatched":           result.Summary.TotalUnmatched,
		"conversion_failures": result.Summary.ConversionFailures,
	})
	return result, nil
}

// prepare wraps or converts both sides for the engine.
func (s *Service) prepare(ctx context.Context, bank, accounts []*models.Transaction, base string, opts RunOptions) ([]*models.ConvertedTransaction, []*models.ConvertedTransaction, error) {
	if !opts.Normalize {
		return models.Passthrough(bank), models.Passthrough(accounts), nil
	}
	if s.converter == nil {
		return nil, nil, errors.ConfigurationError(errors.CodeMissingConfig, "currency_converter", nil, nil).
			WithSuggestion("configure an exchange rate provider to normalize currencies")
	}

	convert := func(txns []*models.Transaction, phase Phase) ([]*models.ConvertedTransaction, error) {
		tracker := logger.NewProgressTracker(string(phase), s.config.ProgressInterval, s.logger)
		return s.converter.ConvertBatch(ctx, txns, base, tracker.Callback(phaseCallback(opts.Progress, phase)))
	}

	convertedBank, err := convert(bank, PhaseConvertBank)
	if err != nil {
		return nil, nil, err
	}
	convertedAccounts, err := convert(accounts, PhaseConvertAccounts)
	if err != nil {
		return nil, nil, err
	}
	return convertedBank, convertedAccounts, nil
}

// ProcessFiles loads every file in req concurrently and runs a reconciliation
// over the combined sides. File order is kept within each side.
func (s *Service) ProcessFiles(ctx context.Context, req *FileRequest) (*FileResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.loader == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "loader", nil, nil)
	}

	paths := append(append([]string{}, req.BankFiles...), req.AccountsFiles...)
	loaded := make([][]*models.Transaction, len(paths))
	stats := make([]*parsers.ParseStats, len(paths))

	s.logger.WithFields(logger.Fields{
		"bank_files":     req.BankFiles,
		"accounts_files": req.AccountsFiles,
	}).Info("Loading transaction files")

	var (
		progressMu sync.Mutex
		filesDone  int
	)
	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(s.config.MaxConcurrentFiles)
	for i, path := range paths {
		i, path := i, path
		p.Go(func(ctx context.Context) error {
			txns, st, err := s.loader.LoadFile(ctx, path)
			if err != nil {
				return err
			}
			loaded[i], stats[i] = txns, st
			if req.Options.Progress != nil {
				progressMu.Lock()
				filesDone++
				req.Options.Progress(PhaseLoad, filesDone, len(paths))
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	var bank, accounts []*models.Transaction
	for i, txns := range loaded {
		if i < len(req.BankFiles) {
			bank = append(bank, txns...)
		} else {
			accounts = append(accounts, txns...)
		}
	}

	result, err := s.Run(ctx, bank, accounts, req.Options)
	if err != nil {
		return nil, err
	}
	return &FileResult{Result: result, Stats: stats}, nil
}

func phaseCallback(progress ProgressFunc, phase Phase) func(done, total int) {
	if progress == nil {
		return nil
	}
	return func(done, total int) {
		progress(phase, done, total)
	}
}

// filterByDate keeps transactions within the inclusive [start, end] range.
func filterByDate(txns []*models.Transaction, start, end *time.Time) []*models.Transaction {
	if start == nil && end == nil {
		return txns
	}

	filtered := make([]*models.Transaction, 0, len(txns))
	for _, t := range txns {
		if start != nil && t.Date.Before(models.CalendarDate(*start)) {
			continue
		}
		if end != nil && t.Date.After(models.CalendarDate(*end)) {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}
