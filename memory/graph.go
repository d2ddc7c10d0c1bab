package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/agentmem/llm"
	"github.com/smallnest/agentmem/log"
)

// StrategyGraph identifies the knowledge graph strategy.
const StrategyGraph = "graph_knowledge"

const graphExtractionSystemPrompt = "You are an entity and relationship extraction expert."

// GraphMemory stores conversation knowledge as a directed graph. Entities
// become nodes and extracted relationships become edges, so queries can
// traverse who relates to what instead of replaying raw text.
type GraphMemory struct {
	client llm.Client

	nodes     map[string]graphNode
	nodeOrder []string
	// edges[source][target]; one edge per ordered pair, last write wins.
	edges     map[string]map[string]graphEdge
	edgeCount int

	history     []Turn
	extractions int
	topoCache   map[string]any
	ops         operationLog
}

type graphNode struct {
	Speaker string
	TurnID  int
	Context string
}

type graphEdge struct {
	Relationship string
	TurnID       int
	Speaker      string
}

// GraphConfig holds configuration for graph memory.
type GraphConfig struct {
	// Client provides the extraction primitive. Required.
	Client llm.Client
}

// NewGraphMemory creates a graph memory backed by the given client.
func NewGraphMemory(config *GraphConfig) (*GraphMemory, error) {
	if config == nil || config.Client == nil {
		return nil, fmt.Errorf("memory: graph requires an llm client")
	}
	return &GraphMemory{
		client: config.Client,
		nodes:  make(map[string]graphNode),
		edges:  make(map[string]map[string]graphEdge),
		ops:    newOperationLog("GRAPH"),
	}, nil
}

var _ Strategy = (*GraphMemory)(nil)

// AddMessage extracts entities and relationships from both sides of the turn
// and merges them into the graph. Malformed extraction output adds nothing.
func (m *GraphMemory) AddMessage(ctx context.Context, userInput, aiResponse string) error {
	turnID := len(m.history)
	m.history = append(m.history, NewTurn(userInput, aiResponse, turnID))
	m.extractAndAdd(ctx, userInput, "user", turnID)
	m.extractAndAdd(ctx, aiResponse, "assistant", turnID)
	m.ops.record("ADD_TURN", map[string]any{"turn_id": turnID})
	return nil
}

func (m *GraphMemory) extractAndAdd(ctx context.Context, text, speaker string, turnID int) {
	prompt := fmt.Sprintf(
		"Extract key entities (people, places, concepts, facts) and relationships from this text. "+
			"Format as: ENTITIES: entity1, entity2, entity3... RELATIONSHIPS: entity1->relationship->entity2, etc.\n\n"+
			"Text: %s\n\n"+
			"If no clear entities or relationships, respond with 'ENTITIES: none RELATIONSHIPS: none'",
		text)
	extracted := m.client.GenerateText(ctx, graphExtractionSystemPrompt, prompt)
	if llm.IsGenerationError(extracted) {
		log.Warn("[GRAPH] Extraction failed for %s text: %s", speaker, preview(text, 50))
		return
	}

	entities, relationships := m.parseAndAdd(extracted, speaker, turnID, text)
	m.extractions++
	m.topoCache = nil
	m.ops.record("EXTRACT", map[string]any{
		"speaker":       speaker,
		"entities":      len(entities),
		"relationships": len(relationships),
	})
	log.Debug("[GRAPH] Extracted %d entities, %d relationships from %s text.",
		len(entities), len(relationships), speaker)
}

// parseAndAdd applies the extraction grammar. Output without both markers is
// ignored wholesale; a relationship that does not split into exactly three
// non-empty parts is discarded individually.
func (m *GraphMemory) parseAndAdd(extracted, speaker string, turnID int, originalText string) ([]string, []string) {
	var entitiesAdded, relationshipsAdded []string
	if !strings.Contains(extracted, "ENTITIES:") || !strings.Contains(extracted, "RELATIONSHIPS:") {
		return nil, nil
	}

	parts := strings.SplitN(extracted, "RELATIONSHIPS:", 2)
	entitiesPart := strings.TrimSpace(strings.Replace(parts[0], "ENTITIES:", "", 1))
	relationshipsPart := ""
	if len(parts) > 1 {
		relationshipsPart = strings.TrimSpace(parts[1])
	}

	if !strings.EqualFold(entitiesPart, "none") {
		for _, raw := range strings.Split(entitiesPart, ",") {
			entity := strings.TrimSpace(raw)
			if entity == "" {
				continue
			}
			m.addNode(entity, graphNode{
				Speaker: speaker,
				TurnID:  turnID,
				Context: preview(originalText, 100),
			})
			entitiesAdded = append(entitiesAdded, entity)
		}
	}

	if !strings.EqualFold(relationshipsPart, "none") {
		for _, raw := range strings.Split(relationshipsPart, ",") {
			rel := strings.TrimSpace(raw)
			if rel == "" || !strings.Contains(rel, "->") {
				continue
			}
			relParts := strings.Split(rel, "->")
			if len(relParts) != 3 {
				continue
			}
			source := strings.TrimSpace(relParts[0])
			relation := strings.TrimSpace(relParts[1])
			target := strings.TrimSpace(relParts[2])
			if source == "" || relation == "" || target == "" {
				continue
			}
			m.addEdge(source, target, graphEdge{
				Relationship: relation,
				TurnID:       turnID,
				Speaker:      speaker,
			})
			relationshipsAdded = append(relationshipsAdded, rel)
		}
	}
	return entitiesAdded, relationshipsAdded
}

// addNode inserts or overwrites a node. Name identity is case-sensitive.
func (m *GraphMemory) addNode(name string, node graphNode) {
	if _, exists := m.nodes[name]; !exists {
		m.nodeOrder = append(m.nodeOrder, name)
	}
	m.nodes[name] = node
}

// addEdge inserts or overwrites the edge for an ordered pair. Endpoints
// mentioned only in relationships become nodes too.
func (m *GraphMemory) addEdge(source, target string, edge graphEdge) {
	for _, endpoint := range []string{source, target} {
		if _, exists := m.nodes[endpoint]; !exists {
			m.addNode(endpoint, graphNode{
				Speaker: edge.Speaker,
				TurnID:  edge.TurnID,
			})
		}
	}
	targets, ok := m.edges[source]
	if !ok {
		targets = make(map[string]graphEdge)
		m.edges[source] = targets
	}
	if _, exists := targets[target]; !exists {
		m.edgeCount++
	}
	targets[target] = edge
}

// GetContext extracts entities from the query, matches them against graph
// nodes by case-insensitive containment, and renders each match with its
// outgoing and incoming edges. With no matches it falls back to the last
// three raw turns.
func (m *GraphMemory) GetContext(ctx context.Context, query string) string {
	if len(m.nodes) == 0 {
		return noMemorySentinel
	}

	prompt := fmt.Sprintf(
		"Extract ONLY the key named entities (specific people, places, organizations) from this query. "+
			"Focus on proper nouns and specific subjects that would be nodes in a knowledge graph. "+
			"Do NOT extract general words like 'everyone', 'team', 'reports', 'list'. "+
			"Examples:\n"+
			"- From 'Who does Bob report to?' extract: Bob\n"+
			"- From 'List everyone who reports to Alice' extract: Alice\n"+
			"- From 'What is the project status?' extract: project\n"+
			"List entities separated by commas. If no clear named entities, respond with 'none'.\n\n"+
			"Query: %s",
		query)
	queryEntities := m.client.GenerateText(ctx, "You are an entity extraction expert.", prompt)

	var relevantInfo []string
	if !llm.IsGenerationError(queryEntities) && !strings.EqualFold(strings.TrimSpace(queryEntities), "none") {
		for _, raw := range strings.Split(queryEntities, ",") {
			entity := strings.TrimSpace(raw)
			if entity == "" {
				continue
			}
			relevantInfo = append(relevantInfo, m.matchNodes(entity)...)
		}
	}

	if len(relevantInfo) == 0 {
		start := len(m.history) - 3
		if start < 0 {
			start = 0
		}
		for _, turn := range m.history[start:] {
			relevantInfo = append(relevantInfo,
				fmt.Sprintf("Turn %d: User: %s", turn.Sequence, turn.UserInput),
				fmt.Sprintf("Turn %d: Assistant: %s", turn.Sequence, turn.AIResponse))
		}
	}

	return "### Knowledge Graph Context:\n" + strings.Join(relevantInfo, "\n")
}

// matchNodes renders every node matching the entity by containment either
// way, in node insertion order.
func (m *GraphMemory) matchNodes(entity string) []string {
	entityLower := strings.ToLower(entity)
	var lines []string
	for _, name := range m.nodeOrder {
		nameLower := strings.ToLower(name)
		if !strings.Contains(nameLower, entityLower) && !strings.Contains(entityLower, nameLower) {
			continue
		}
		node := m.nodes[name]
		speaker := node.Speaker
		if speaker == "" {
			speaker = "unknown"
		}
		lines = append(lines, fmt.Sprintf("Entity: %s (from %s)", name, speaker))

		for _, neighbor := range m.nodeOrder {
			if edge, ok := m.edges[name][neighbor]; ok {
				lines = append(lines, fmt.Sprintf("  -> %s -> %s", edge.Relationship, neighbor))
			}
		}
		for _, predecessor := range m.nodeOrder {
			if edge, ok := m.edges[predecessor][name]; ok {
				lines = append(lines, fmt.Sprintf("  <- %s <- %s", predecessor, edge.Relationship))
			}
		}
	}
	return lines
}

// Clear drops the graph and the raw history.
func (m *GraphMemory) Clear() {
	m.nodes = make(map[string]graphNode)
	m.nodeOrder = nil
	m.edges = make(map[string]map[string]graphEdge)
	m.edgeCount = 0
	m.history = nil
	m.extractions = 0
	m.topoCache = nil
	m.ops.reset()
	log.Info("[GRAPH] Graph memory cleared.")
}

// OperationLog returns a snapshot of the audit trail.
func (m *GraphMemory) OperationLog() []Operation {
	return m.ops.snapshot()
}

// Topology returns structural metrics. The result is cached until the next
// mutation.
func (m *GraphMemory) Topology() map[string]any {
	if m.topoCache != nil {
		return m.topoCache
	}
	numNodes := len(m.nodes)
	numEdges := m.edgeCount

	density := 0.0
	if numNodes > 1 {
		density = float64(numEdges) / float64(numNodes*(numNodes-1))
	}
	avgDegree := 0.0
	if numNodes > 0 {
		// Each directed edge contributes one out-degree and one in-degree.
		avgDegree = float64(2*numEdges) / float64(numNodes)
	}

	m.topoCache = map[string]any{
		"nodes":                numNodes,
		"edges":                numEdges,
		"density":              roundTo(density, 4),
		"avg_degree":           roundTo(avgDegree, 4),
		"connected_components": m.weaklyConnectedComponents(),
	}
	return m.topoCache
}

// weaklyConnectedComponents counts components ignoring edge direction.
func (m *GraphMemory) weaklyConnectedComponents() int {
	if len(m.nodes) == 0 {
		return 0
	}
	undirected := make(map[string][]string, len(m.nodes))
	for source, targets := range m.edges {
		for target := range targets {
			undirected[source] = append(undirected[source], target)
			undirected[target] = append(undirected[target], source)
		}
	}

	visited := make(map[string]bool, len(m.nodes))
	components := 0
	for _, name := range m.nodeOrder {
		if visited[name] {
			continue
		}
		components++
		stack := []string{name}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[current] {
				continue
			}
			visited[current] = true
			stack = append(stack, undirected[current]...)
		}
	}
	return components
}

// Stats reports graph topology metrics.
func (m *GraphMemory) Stats() Stats {
	topo := m.Topology()
	return Stats{
		StrategyID:   StrategyGraph,
		StrategyType: "GraphMemory",
		MemorySize: fmt.Sprintf("%d nodes, %d edges, %d turns",
			topo["nodes"], topo["edges"], len(m.history)),
		Metrics: map[string]any{
			"graph_metrics": topo,
			"num_turns":     len(m.history),
			"extractions":   m.extractions,
		},
	}
}
