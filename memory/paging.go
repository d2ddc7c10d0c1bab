package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/smallnest/agentmem/log"
)

// StrategyOSPaging identifies the tiered paging strategy.
const StrategyOSPaging = "os_paging"

// DefaultRAMSize is the active-tier capacity when no size is given.
const DefaultRAMSize = 2

// OSMemory manages conversation turns the way an operating system manages
// memory pages. A small active tier (RAM) holds the most recent turns; older
// turns are paged out to an unbounded passive tier (disk) and paged back in
// when a query mentions their content.
//
// A turn id lives in exactly one tier at any time.
type OSMemory struct {
	ramSize     int
	ramStorage  []ramPage
	diskStorage map[int]string

	turnCount  int
	pageFaults int
	hits       int
	misses     int
	ops        operationLog
}

type ramPage struct {
	TurnID int
	Data   string
}

// OSMemoryConfig holds configuration for OS-like paging memory.
type OSMemoryConfig struct {
	// RAMSize is the number of turns the active tier holds. Defaults to
	// DefaultRAMSize when zero or negative.
	RAMSize int
}

// NewOSMemory creates a paging memory with the given active-tier capacity.
func NewOSMemory(config *OSMemoryConfig) *OSMemory {
	if config == nil {
		config = &OSMemoryConfig{}
	}
	size := config.RAMSize
	if size <= 0 {
		size = DefaultRAMSize
	}
	return &OSMemory{
		ramSize:     size,
		diskStorage: make(map[int]string),
		ops:         newOperationLog("OS_PAGE"),
	}
}

var _ Strategy = (*OSMemory)(nil)

// AddMessage stores a turn in the active tier, paging the oldest active turn
// out to the passive tier first when the active tier is full.
func (m *OSMemory) AddMessage(ctx context.Context, userInput, aiResponse string) error {
	turnID := m.turnCount
	turnData := fmt.Sprintf("User: %s\nAI: %s", userInput, aiResponse)

	if len(m.ramStorage) >= m.ramSize {
		oldest := m.ramStorage[0]
		m.ramStorage = m.ramStorage[1:]
		m.diskStorage[oldest.TurnID] = oldest.Data
		m.ops.record("PAGE_OUT", map[string]any{"turn_id": oldest.TurnID})
		log.Debug("[OS_PAGE] Paging out turn %d to passive storage.", oldest.TurnID)
	}

	m.ramStorage = append(m.ramStorage, ramPage{TurnID: turnID, Data: turnData})
	m.turnCount++
	m.ops.record("ADD_TURN", map[string]any{"turn_id": turnID})
	return nil
}

// GetContext renders the active tier and pages in any passive-tier turns
// whose content matches a query word longer than three characters. Each
// page-in counts as a page fault.
func (m *OSMemory) GetContext(ctx context.Context, query string) string {
	parts := make([]string, 0, len(m.ramStorage))
	for _, page := range m.ramStorage {
		parts = append(parts, page.Data)
	}
	activeContext := strings.Join(parts, "\n")

	var queryWords []string
	for _, word := range strings.Fields(query) {
		if len(word) > 3 {
			queryWords = append(queryWords, strings.ToLower(word))
		}
	}

	// Scan passive pages in turn order so repeated queries render the same
	// context.
	diskIDs := make([]int, 0, len(m.diskStorage))
	for id := range m.diskStorage {
		diskIDs = append(diskIDs, id)
	}
	sort.Ints(diskIDs)

	var pagedIn strings.Builder
	for _, turnID := range diskIDs {
		data := m.diskStorage[turnID]
		lower := strings.ToLower(data)
		for _, word := range queryWords {
			if strings.Contains(lower, word) {
				m.pageFaults++
				fmt.Fprintf(&pagedIn, "\n(Paged in from Turn %d): %s", turnID, data)
				log.Debug("[OS_PAGE] Page fault: paging in turn %d from passive storage.", turnID)
				break
			}
		}
	}

	if pagedIn.Len() > 0 {
		m.misses++
		m.ops.record("PAGE_FAULT", map[string]any{"paged_in": true})
		return fmt.Sprintf("### Active Memory (RAM):\n%s\n\n### Paged-In from Passive Memory (Disk):\n%s",
			activeContext, pagedIn.String())
	}

	m.hits++
	if activeContext == "" {
		return noMemorySentinel
	}
	return "### Active Memory (RAM):\n" + activeContext
}

// Clear empties both tiers and resets all counters.
func (m *OSMemory) Clear() {
	m.ramStorage = nil
	m.diskStorage = make(map[int]string)
	m.turnCount = 0
	m.pageFaults = 0
	m.hits = 0
	m.misses = 0
	m.ops.reset()
	log.Info("[OS_PAGE] OS-like memory cleared.")
}

// OperationLog returns a snapshot of the audit trail.
func (m *OSMemory) OperationLog() []Operation {
	return m.ops.snapshot()
}

// Stats reports tier occupancy and paging metrics.
func (m *OSMemory) Stats() Stats {
	ramUtil := len(m.ramStorage)
	diskPages := len(m.diskStorage)
	total := m.hits + m.misses
	efficiency := 0.0
	if total > 0 {
		efficiency = float64(m.hits) / float64(total)
	}
	return Stats{
		StrategyID:   StrategyOSPaging,
		StrategyType: "OSMemory",
		MemorySize:   fmt.Sprintf("%d in RAM, %d on disk", ramUtil, diskPages),
		Metrics: map[string]any{
			"paging_metrics": map[string]any{
				"ram_capacity":    m.ramSize,
				"ram_utilization": ramUtil,
				"disk_pages":      diskPages,
				"page_faults":     m.pageFaults,
				"lru_efficiency":  roundTo(efficiency, 4),
			},
			"total_turns": m.turnCount,
		},
	}
}
