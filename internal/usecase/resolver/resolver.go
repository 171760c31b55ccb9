// Package resolver locates the form, textarea and submit button of the host
// chat page using an ordered list of selector strategies.
package resolver

import (
	"context"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

type Resolver struct {
	doc    output.DocumentPort
	logger output.LoggerPort
}

func New(doc output.DocumentPort, logger output.LoggerPort) *Resolver {
	return &Resolver{doc: doc, logger: logger}
}

// Resolve returns the triple of the first strategy whose three selectors each
// match exactly one connected element. No match yields an empty result, which
// callers treat as "not ready".
func (r *Resolver) Resolve(ctx context.Context, strategies []entity.SelectorStrategy) output.ResolvedElements {
	for _, st := range strategies {
		if !st.Valid() {
			continue
		}
		form, ok := r.single(ctx, st.Name, st.Form)
		if !ok {
			continue
		}
		textarea, ok := r.single(ctx, st.Name, st.Textarea)
		if !ok {
			continue
		}
		button, ok := r.single(ctx, st.Name, st.SubmitButton)
		if !ok {
			continue
		}
		return output.ResolvedElements{
			Form:         form,
			Textarea:     textarea,
			SubmitButton: button,
			StrategyName: st.Name,
		}
	}
	return output.ResolvedElements{}
}

func (r *Resolver) single(ctx context.Context, strategy, selector string) (output.Element, bool) {
	found, err := r.doc.QueryAll(ctx, selector)
	if err != nil {
		r.logger.Debug("selector query failed", "strategy", strategy, "selector", selector, "error", err)
		return nil, false
	}

	var live output.Element
	count := 0
	for _, el := range found {
		if ok, err := el.Connected(ctx); err != nil || !ok {
			continue
		}
		live = el
		count++
	}
	if count != 1 {
		return nil, false
	}
	return live, true
}
