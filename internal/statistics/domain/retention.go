package statistics

import (
	"sort"
	"time"
)

const (
	DefaultRetentionDays     = 30
	DefaultMaxEntries        = 5000
	DefaultBytesPerEntry     = 512
	DefaultMemoryBudgetBytes = 4 << 20
)

// RetentionPolicy bounds the retained entry list. Filters apply in order:
// age, count, then memory budget. Zero MaxEntries or MemoryBudgetBytes
// disable that filter.
type RetentionPolicy struct {
	RetentionDays     int `yaml:"days"`
	MaxEntries        int `yaml:"max_entries"`
	MemoryBudgetBytes int `yaml:"memory_budget_bytes"`
	BytesPerEntry     int `yaml:"bytes_per_entry"`
}

// DefaultRetentionPolicy keeps 30 days and at most 5000 entries.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays:     DefaultRetentionDays,
		MaxEntries:        DefaultMaxEntries,
		MemoryBudgetBytes: DefaultMemoryBudgetBytes,
		BytesPerEntry:     DefaultBytesPerEntry,
	}
}

func (p RetentionPolicy) withDefaults() RetentionPolicy {
	if p.RetentionDays <= 0 {
		p.RetentionDays = DefaultRetentionDays
	}
	if p.MaxEntries < 0 {
		p.MaxEntries = 0
	}
	if p.MemoryBudgetBytes < 0 {
		p.MemoryBudgetBytes = 0
	}
	if p.BytesPerEntry <= 0 {
		p.BytesPerEntry = DefaultBytesPerEntry
	}
	return p
}

// CleanupReport describes what a cleanup removed.
type CleanupReport struct {
	OriginalCount   int       `json:"originalCount"`
	RemovedByAge    int       `json:"removedByAge"`
	RemovedByCount  int       `json:"removedByCount"`
	RemovedByMemory int       `json:"removedByMemory"`
	FinalCount      int       `json:"finalCount"`
	EstimatedBytes  int       `json:"estimatedBytes"`
	Cutoff          time.Time `json:"cutoff"`
}

// Removed is the total number of dropped entries.
func (r CleanupReport) Removed() int {
	return r.RemovedByAge + r.RemovedByCount + r.RemovedByMemory
}

// CleanupResult is the extended cleanup form.
type CleanupResult struct {
	CleanedEntries []Entry       `json:"cleanedEntries"`
	CleanupReport  CleanupReport `json:"cleanupReport"`
}

// CleanupOldEntries drops entries older than retentionDays and keeps at
// most maxEntries of the newest ones; maxEntries <= 0 keeps all.
func (a *Aggregator) CleanupOldEntries(entries []Entry, retentionDays, maxEntries int) []Entry {
	policy := RetentionPolicy{RetentionDays: retentionDays, MaxEntries: maxEntries}
	return a.CleanupOldEntriesWithReport(entries, policy).CleanedEntries
}

// CleanupOldEntriesWithReport applies the full policy and reports what was removed.
// The result is ordered by timestamp ascending.
func (a *Aggregator) CleanupOldEntriesWithReport(entries []Entry, policy RetentionPolicy) CleanupResult {
	policy = policy.withDefaults()
	cutoff := a.clock.Now().Add(-time.Duration(policy.RetentionDays) * 24 * time.Hour)
	report := CleanupReport{OriginalCount: len(entries), Cutoff: cutoff.UTC()}

	kept := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Timestamp < cutoff.Unix() {
			report.RemovedByAge++
			continue
		}
		kept = append(kept, entry)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Timestamp < kept[j].Timestamp })

	if policy.MaxEntries > 0 && len(kept) > policy.MaxEntries {
		report.RemovedByCount = len(kept) - policy.MaxEntries
		kept = kept[report.RemovedByCount:]
	}

	if policy.MemoryBudgetBytes > 0 {
		fit := policy.MemoryBudgetBytes / policy.BytesPerEntry
		if len(kept) > fit {
			report.RemovedByMemory = len(kept) - fit
			kept = kept[report.RemovedByMemory:]
		}
	}

	report.FinalCount = len(kept)
	report.EstimatedBytes = len(kept) * policy.BytesPerEntry
	return CleanupResult{CleanedEntries: kept, CleanupReport: report}
}

// AppendEntries adds entries to the retained list and applies the policy.
// existing is not modified.
func (a *Aggregator) AppendEntries(existing []Entry, policy RetentionPolicy, added ...Entry) CleanupResult {
	merged := make([]Entry, 0, len(existing)+len(added))
	merged = append(merged, existing...)
	merged = append(merged, added...)
	return a.CleanupOldEntriesWithReport(merged, policy)
}
