// Package correlate implements the correlator (C7): it upserts every IOC
// extracted from a scan into the store's IOC index and raises a reuse
// signal whenever a value's reuse set grows to include a second distinct
// target.
package correlate

import (
	"context"
	"time"

	"github.com/duskwatch/duskwatch/internal/model"
)

// IOCUpserter is the subset of the Store the Correlator needs.
type IOCUpserter interface {
	IOCUpsert(ctx context.Context, iocType model.IOCType, value, target string, ts time.Time) (reuseCount int, targets []string, newTarget bool, err error)
}

// ReuseSignal is raised when an IOC's reuse set crosses the ≥2-distinct-
// targets threshold as a direct result of this scan.
type ReuseSignal struct {
	IOCType    model.IOCType
	IOCValue   string
	Severity   model.RiskLevel
	ReuseCount int
}

// Correlator upserts the IOCs found in one scan and reports reuse
// signals.
type Correlator struct {
	store IOCUpserter
}

// New builds a Correlator over store.
func New(store IOCUpserter) *Correlator {
	return &Correlator{store: store}
}

// Input is the set of IOCs discovered in one ScanRecord.
type Input struct {
	Emails    []string
	Crypto    []string
	FileHashes []string
}

// Correlate upserts every IOC in in against target at ts and returns one
// ReuseSignal per IOC whose reuse set grows to ≥2 distinct targets as a
// result of this call.
func (c *Correlator) Correlate(ctx context.Context, target string, ts time.Time, in Input) ([]ReuseSignal, error) {
	var signals []ReuseSignal

	upsert := func(iocType model.IOCType, value string, severity model.RiskLevel) error {
		reuseCount, _, newTarget, err := c.store.IOCUpsert(ctx, iocType, value, target, ts)
		if err != nil {
			return err
		}
		if reuseCount >= 2 && newTarget {
			signals = append(signals, ReuseSignal{
				IOCType:    iocType,
				IOCValue:   value,
				Severity:   severity,
				ReuseCount: reuseCount,
			})
		}
		return nil
	}

	for _, email := range in.Emails {
		if err := upsert(model.IOCEmail, email, model.RiskHigh); err != nil {
			return nil, err
		}
	}
	for _, addr := range in.Crypto {
		if err := upsert(model.IOCCrypto, addr, model.RiskHigh); err != nil {
			return nil, err
		}
	}
	for _, hash := range in.FileHashes {
		if err := upsert(model.IOCFileHash, hash, model.RiskMedium); err != nil {
			return nil, err
		}
	}

	return signals, nil
}
