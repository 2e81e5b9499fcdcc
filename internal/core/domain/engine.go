package domain

// Engine is the SQL safety validation engine: a pure, request-scoped
// pipeline of parse, classify, resolve and rule evaluation. It holds no
// mutable state and is safe for unbounded concurrent use; every call works
// only on its own input and the immutable snapshots passed in.
type Engine struct {
	resolver StatementResolver
	rules    []Rule
}

// NewEngine builds an engine with the default resolver and rule chain.
func NewEngine() *Engine {
	return &Engine{
		resolver: NewResolver(),
		rules:    PolicyRules(),
	}
}

// NewEngineWithResolver swaps in an alternate resolver backend.
func NewEngineWithResolver(resolver StatementResolver) *Engine {
	return &Engine{resolver: resolver, rules: PolicyRules()}
}

// Validate is the sole entry point. It is total: every input produces
// exactly one result and the call never panics or returns an error —
// failed validation is a normal outcome represented as data.
func (e *Engine) Validate(rawSQL string, role Role, cfg PolicyConfig, schema SchemaView) ValidationResult {
	parser := NewParser(cfg.MaxParseDepth)

	stmts, err := parser.Parse(rawSQL)
	if err != nil {
		perr, ok := err.(*ParseError)
		if !ok {
			// Unexpected parser fault: downgrade, never propagate.
			perr = &ParseError{Kind: ErrSyntax, Term: "unrecognized structure"}
		}
		// Comments are stripped here too, so the reported normalization
		// matches what every successfully parsed path reports.
		return e.finish(ValidationResult{
			NormalizedSQL: normalize(stripComments(rawSQL)),
			Kind:          KindUnknown,
			ErrorKind:     perr.Kind,
			OffendingTerm: perr.Term,
		}, cfg)
	}

	if len(stmts) == 0 {
		// Comments or whitespace only: nothing executable, treated as an
		// UNKNOWN statement which no mode permits.
		return e.finish(ValidationResult{
			Kind:          KindUnknown,
			ErrorKind:     ErrKindNotAllowed,
			OffendingTerm: KindUnknown.String(),
		}, cfg)
	}

	stmt := stmts[0]
	kind := Classify(stmt)
	resolved := e.resolver.Resolve(stmt, schema)

	result := ValidationResult{
		NormalizedSQL: stmt.Raw.Normalized,
		Kind:          kind,
		Tables:        resolved.Tables,
		UnknownTables: resolved.UnknownTables,
	}

	ev := &Evaluation{
		Statements: stmts,
		Stmt:       stmt,
		Kind:       kind,
		Resolved:   resolved,
		Role:       role,
		Config:     cfg,
	}
	for _, rule := range e.rules {
		if v := rule.Evaluate(ev); v != nil {
			result.ErrorKind = v.Kind
			result.OffendingTerm = v.Term
			break
		}
	}

	return e.finish(result, cfg)
}

// finish marks validity, renders the explanation and seals the result.
func (e *Engine) finish(result ValidationResult, cfg PolicyConfig) ValidationResult {
	result.Valid = result.ErrorKind == ""
	result.KindName = result.Kind.String()
	result.Explanation = Explain(result.ErrorKind, result.OffendingTerm, result.UnknownTables, cfg)
	return result
}
