// Package cognition implements the collaborator clients that consume the
// fabric's narrow interface: concept binding for knowledge mapping,
// similarity-derived truth estimates for reasoning, fitness ranking for
// pattern search, activation-weighted attention allocation, and
// fabric-state feature reads for temporal prediction. None of these hold
// embeddings themselves; they hold component addresses and re-read the
// fabric on each access.
package cognition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/orgitcog/fabric"
)

// ErrScaleFull indicates no free component remains at a scale for binding.
var ErrScaleFull = errors.New("cognition: no free components at scale")

// Binding addresses the fabric component a concept is bound to.
type Binding struct {
	Scale     fabric.Scale
	Component int
}

// Neighbor is one similarity-ranked concept near a bound concept.
type Neighbor struct {
	Component int
	Score     float64
	Name      string
}

// TruthValue is a similarity-derived truth estimate with confidence,
// both in [0, 1].
type TruthValue struct {
	Strength   float64
	Confidence float64
}

// Layer binds named concepts to fabric components and serves the
// collaborator reads on top of them.
type Layer struct {
	fab *fabric.Fabric

	mu       sync.RWMutex
	bindings map[string]Binding
	used     map[fabric.Scale]map[int]string
}

// New creates a Layer over the given fabric.
func New(fab *fabric.Fabric) *Layer {
	return &Layer{
		fab:      fab,
		bindings: make(map[string]Binding),
		used:     make(map[fabric.Scale]map[int]string),
	}
}

// Bind maps a named concept to a fabric component at the given scale,
// allocating the lowest unbound id. Binding an already-bound name returns
// the existing binding unchanged. When features is non-nil it seeds the
// component's embedding. Returns ErrScaleFull when every component at the
// scale is bound. Features are validated before the name is registered, so
// a rejected Bind leaves no binding behind and can be retried.
func (l *Layer) Bind(ctx context.Context, name string, scale fabric.Scale, features []float64) (Binding, error) {
	cardinality, err := l.fab.Cardinality(scale)
	if err != nil {
		return Binding{}, err
	}
	if features != nil {
		if len(features) != l.fab.Dimension() {
			return Binding{}, fmt.Errorf("%w: got %d, want %d", fabric.ErrDimension, len(features), l.fab.Dimension())
		}
		for i, v := range features {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Binding{}, fmt.Errorf("%w: element %d", fabric.ErrInvalidVector, i)
			}
		}
	}

	l.mu.Lock()
	if b, ok := l.bindings[name]; ok {
		l.mu.Unlock()
		return b, nil
	}
	taken := l.used[scale]
	if taken == nil {
		taken = make(map[int]string)
		l.used[scale] = taken
	}
	component := 0
	for ; component < cardinality; component++ {
		if _, ok := taken[component]; !ok {
			break
		}
	}
	if component >= cardinality {
		l.mu.Unlock()
		return Binding{}, fmt.Errorf("%w: %q", ErrScaleFull, scale)
	}
	b := Binding{Scale: scale, Component: component}
	l.bindings[name] = b
	taken[component] = name
	l.mu.Unlock()

	md := fabric.Metadata{
		Name: name,
		Kind: "concept",
		Extra: map[string]any{
			"source": "knowledge_graph",
		},
	}
	if err := l.fab.SetMetadata(ctx, scale, component, md); err != nil {
		l.unbind(name, scale, component)
		return Binding{}, err
	}
	if features != nil {
		if err := l.fab.SetEmbedding(ctx, scale, component, features); err != nil {
			l.unbind(name, scale, component)
			return Binding{}, err
		}
	}
	return b, nil
}

// unbind releases a registration whose fabric writes did not complete.
func (l *Layer) unbind(name string, scale fabric.Scale, component int) {
	l.mu.Lock()
	delete(l.bindings, name)
	delete(l.used[scale], component)
	l.mu.Unlock()
}

// Resolve returns the binding for a concept name.
func (l *Layer) Resolve(name string) (Binding, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bindings[name]
	return b, ok
}

// Related returns up to k components most similar to a bound concept's
// embedding, excluding the concept itself, annotated with their metadata
// names where set.
func (l *Layer) Related(ctx context.Context, name string, k int) ([]Neighbor, error) {
	b, ok := l.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: concept %q", fabric.ErrNotFound, name)
	}
	emb, err := l.fab.Embedding(b.Scale, b.Component)
	if err != nil {
		return nil, err
	}
	matches, err := l.fab.Query(ctx, emb, b.Scale, k+1)
	if err != nil {
		return nil, err
	}
	neighbors := make([]Neighbor, 0, k)
	for _, m := range matches {
		if m.Component == b.Component {
			continue
		}
		if len(neighbors) == k {
			break
		}
		md, err := l.fab.Metadata(b.Scale, m.Component)
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, Neighbor{
			Component: m.Component,
			Score:     m.Score,
			Name:      md.Name,
		})
	}
	return neighbors, nil
}

// Entail estimates how strongly the bound premise concepts support the
// bound conclusion concept. The estimate is the cosine of the mean premise
// embedding against the conclusion embedding mapped to [0, 1]; confidence
// grows with premise count and mutual consistency. Unresolvable premises
// are skipped; when none resolve, or the conclusion is unbound, the zero
// TruthValue is returned without error.
func (l *Layer) Entail(_ context.Context, premises []string, conclusion string) (TruthValue, error) {
	conclusionBinding, ok := l.Resolve(conclusion)
	if !ok {
		return TruthValue{}, nil
	}

	var embeddings [][]float64
	for _, premise := range premises {
		b, ok := l.Resolve(premise)
		if !ok {
			continue
		}
		emb, err := l.fab.Embedding(b.Scale, b.Component)
		if err != nil {
			return TruthValue{}, err
		}
		embeddings = append(embeddings, emb)
	}
	if len(embeddings) == 0 {
		return TruthValue{}, nil
	}

	combined := make([]float64, l.fab.Dimension())
	for _, emb := range embeddings {
		for i, v := range emb {
			combined[i] += v
		}
	}
	for i := range combined {
		combined[i] /= float64(len(embeddings))
	}

	conclusionEmb, err := l.fab.Embedding(conclusionBinding.Scale, conclusionBinding.Component)
	if err != nil {
		return TruthValue{}, err
	}

	var strength float64
	if norm(combined) > 0 && norm(conclusionEmb) > 0 {
		strength = (fabric.Cosine(combined, conclusionEmb) + 1) / 2
	}

	consistency := 1.0
	if len(embeddings) > 1 {
		var total float64
		var pairs int
		for i := 0; i < len(embeddings); i++ {
			for j := i + 1; j < len(embeddings); j++ {
				total += (fabric.Cosine(embeddings[i], embeddings[j]) + 1) / 2
				pairs++
			}
		}
		consistency = total / float64(pairs)
	}
	confidence := consistency * float64(len(embeddings)) / 10
	if confidence > 1 {
		confidence = 1
	}

	return TruthValue{Strength: strength, Confidence: confidence}, nil
}

// PatternSearch ranks components at a scale by fitness against a target
// pattern, fitness being cosine similarity.
func (l *Layer) PatternSearch(ctx context.Context, target []float64, scale fabric.Scale, population int) ([]fabric.Match, error) {
	return l.fab.Query(ctx, target, scale, population)
}

// AllocateAttention splits an attention budget across scales and
// components in proportion to absolute activation. Scales missing from
// activations receive nothing; when every activation is zero the budget is
// spread uniformly over every component of every fabric scale.
func (l *Layer) AllocateAttention(activations map[fabric.Scale][]float64, budget float64) (map[fabric.Scale]map[int]float64, error) {
	var total float64
	for scale, acts := range activations {
		cardinality, err := l.fab.Cardinality(scale)
		if err != nil {
			return nil, err
		}
		if len(acts) != cardinality {
			return nil, fmt.Errorf("%w: %d activations at scale %q, want %d", fabric.ErrDimension, len(acts), scale, cardinality)
		}
		for _, a := range acts {
			total += math.Abs(a)
		}
	}

	allocation := make(map[fabric.Scale]map[int]float64)
	if total == 0 {
		var components int
		for _, scale := range l.fab.Scales() {
			n, _ := l.fab.Cardinality(scale)
			components += n
		}
		uniform := budget / float64(components)
		for _, scale := range l.fab.Scales() {
			n, _ := l.fab.Cardinality(scale)
			perScale := make(map[int]float64, n)
			for i := 0; i < n; i++ {
				perScale[i] = uniform
			}
			allocation[scale] = perScale
		}
		return allocation, nil
	}

	for scale, acts := range activations {
		var scaleTotal float64
		for _, a := range acts {
			scaleTotal += math.Abs(a)
		}
		if scaleTotal == 0 {
			continue
		}
		scaleBudget := budget * scaleTotal / total
		perScale := make(map[int]float64, len(acts))
		for i, a := range acts {
			perScale[i] = scaleBudget * math.Abs(a) / scaleTotal
		}
		allocation[scale] = perScale
	}
	return allocation, nil
}

// Features returns the per-component embedding norms at a scale, the
// compact fabric-state vector temporal predictors consume.
func (l *Layer) Features(scale fabric.Scale) ([]float64, error) {
	return l.fab.Norms(scale)
}

func norm(vec []float64) float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}
