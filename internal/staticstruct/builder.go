package staticstruct

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"strconv"
	"strings"

	"github.com/antigravity-dev/capgate/core"
)

// Builder parses code snippets written against the conventional
// `mcp.<namespace>.<action>(args)` tool-call form, expressed as valid Go
// source, into a StaticStructure. Known parameter names (the plan's
// declared input parameters) are supplied so argument classification can
// distinguish a parameter lookup from a literal.
type Builder struct {
	knownParameters map[string]bool
}

// NewBuilder constructs a Builder. knownParameters names the plan's
// declared input parameters (so an identifier like `path` resolves to
// ArgParameter instead of being mistaken for a prior-task binding).
func NewBuilder(knownParameters []string) *Builder {
	set := make(map[string]bool, len(knownParameters))
	for _, p := range knownParameters {
		set[p] = true
	}
	return &Builder{knownParameters: set}
}

type buildState struct {
	nodes       []Node
	edges       []Edge
	literals    map[string]interface{}
	bindings    map[string]string // variable name -> producing node id
	nextID      int
	declOrder   int
}

func (b *Builder) newNodeID(s *buildState, prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s_%d", prefix, s.nextID)
}

// Build parses snippet and returns its StaticStructure. Code that parses
// but yields no task nodes is accepted here (C10 is responsible for
// rejecting it); Build only reports genuine parse failures.
func (b *Builder) Build(snippet string) (*StaticStructure, error) {
	wrapped := "package snippet\nfunc Plan() {\n" + snippet + "\n}\n"

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "snippet.go", wrapped, parser.AllErrors)
	if err != nil {
		return nil, core.NewFrameworkError("staticstruct.Build", core.KindNoDAG, err)
	}

	var fn *ast.FuncDecl
	for _, decl := range file.Decls {
		if f, ok := decl.(*ast.FuncDecl); ok && f.Name.Name == "Plan" {
			fn = f
			break
		}
	}
	if fn == nil || fn.Body == nil {
		return nil, core.NewFrameworkError("staticstruct.Build", core.KindNoDAG, core.ErrNoDAG)
	}

	s := &buildState{
		literals: make(map[string]interface{}),
		bindings: make(map[string]string),
	}

	if err := b.walkStmts(s, fn.Body.List); err != nil {
		return nil, err
	}

	return &StaticStructure{
		Nodes:           s.nodes,
		Edges:           s.edges,
		LiteralBindings: s.literals,
	}, nil
}

func (b *Builder) walkStmts(s *buildState, stmts []ast.Stmt) error {
	var lastTaskID string
	for _, stmt := range stmts {
		switch st := stmt.(type) {
		case *ast.AssignStmt:
			nodeID, err := b.handleAssign(s, st)
			if err != nil {
				return err
			}
			if nodeID != "" {
				if lastTaskID != "" {
					s.edges = append(s.edges, Edge{From: lastTaskID, To: nodeID, Kind: EdgeOrder})
				}
				lastTaskID = nodeID
			}
		case *ast.ExprStmt:
			if call, ok := st.X.(*ast.CallExpr); ok {
				if tool, ok := toolSelector(call); ok {
					nodeID := b.newNodeID(s, "task")
					node, err := b.buildTaskNode(s, nodeID, tool, call)
					if err != nil {
						return err
					}
					s.nodes = append(s.nodes, node)
					if lastTaskID != "" {
						s.edges = append(s.edges, Edge{From: lastTaskID, To: nodeID, Kind: EdgeOrder})
					}
					lastTaskID = nodeID
				}
			}
		case *ast.IfStmt:
			nodeID, err := b.handleIf(s, st)
			if err != nil {
				return err
			}
			if lastTaskID != "" {
				s.edges = append(s.edges, Edge{From: lastTaskID, To: nodeID, Kind: EdgeOrder})
			}
			lastTaskID = nodeID
		case *ast.ForStmt:
			nodeID, err := b.handleLoop(s, st.Body.List, LoopWhile, exprString(st.Cond))
			if err != nil {
				return err
			}
			if lastTaskID != "" {
				s.edges = append(s.edges, Edge{From: lastTaskID, To: nodeID, Kind: EdgeOrder})
			}
			lastTaskID = nodeID
		case *ast.RangeStmt:
			nodeID, err := b.handleLoop(s, st.Body.List, LoopForOf, exprString(st.X))
			if err != nil {
				return err
			}
			if lastTaskID != "" {
				s.edges = append(s.edges, Edge{From: lastTaskID, To: nodeID, Kind: EdgeOrder})
			}
			lastTaskID = nodeID
		}
	}
	return nil
}

func (b *Builder) handleAssign(s *buildState, st *ast.AssignStmt) (string, error) {
	if len(st.Rhs) != 1 || len(st.Lhs) != 1 {
		return "", nil
	}
	call, ok := st.Rhs[0].(*ast.CallExpr)
	if !ok {
		return "", nil
	}
	tool, ok := toolSelector(call)
	if !ok {
		return "", nil
	}
	lhsIdent, ok := st.Lhs[0].(*ast.Ident)
	if !ok {
		return "", nil
	}

	nodeID := b.newNodeID(s, "task")
	node, err := b.buildTaskNode(s, nodeID, tool, call)
	if err != nil {
		return "", err
	}
	node.ResultBinding = lhsIdent.Name
	s.nodes = append(s.nodes, node)
	s.bindings[lhsIdent.Name] = nodeID
	return nodeID, nil
}

func (b *Builder) buildTaskNode(s *buildState, nodeID, tool string, call *ast.CallExpr) (Node, error) {
	s.declOrder++
	node := Node{
		ID:               nodeID,
		Kind:             NodeTask,
		Tool:             tool,
		StaticArguments:  make(map[string]ArgRef),
		DeclarationOrder: s.declOrder,
	}

	if len(call.Args) == 0 {
		return node, nil
	}

	lit, ok := call.Args[0].(*ast.CompositeLit)
	if !ok {
		// single positional argument with no named fields
		ref, dep := b.classifyArg(s, call.Args[0])
		node.StaticArguments["_0"] = ref
		if dep != "" {
			s.edges = append(s.edges, Edge{From: dep, To: nodeID, Kind: EdgeDataFlow, Arg: "_0"})
		}
		return node, nil
	}

	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		key := keyString(kv.Key)
		if key == "" {
			continue
		}
		ref, dep := b.classifyArg(s, kv.Value)
		node.StaticArguments[key] = ref
		if dep != "" {
			s.edges = append(s.edges, Edge{From: dep, To: nodeID, Kind: EdgeDataFlow, Arg: key})
		}
	}
	return node, nil
}

// classifyArg resolves one argument expression into an ArgRef, returning
// the producing node id as a dependency if it references a prior result.
func (b *Builder) classifyArg(s *buildState, expr ast.Expr) (ArgRef, string) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		return ArgRef{Kind: ArgLiteral, Literal: literalValue(e)}, ""
	case *ast.Ident:
		if b.knownParameters[e.Name] {
			return ArgRef{Kind: ArgParameter, ParameterName: e.Name}, ""
		}
		if producer, ok := s.bindings[e.Name]; ok {
			return ArgRef{Kind: ArgPriorResult, PriorTaskID: producer}, producer
		}
		// unrecognized identifier: treat as a parameter lookup, since an
		// argument grammar only has these three buckets.
		return ArgRef{Kind: ArgParameter, ParameterName: e.Name}, ""
	case *ast.SelectorExpr:
		if ident, ok := e.X.(*ast.Ident); ok {
			if producer, ok := s.bindings[ident.Name]; ok {
				return ArgRef{Kind: ArgPriorResult, PriorTaskID: producer, Field: e.Sel.Name}, producer
			}
		}
		return ArgRef{Kind: ArgLiteral, Literal: exprString(expr)}, ""
	default:
		return ArgRef{Kind: ArgLiteral, Literal: exprString(expr)}, ""
	}
}

func (b *Builder) handleIf(s *buildState, st *ast.IfStmt) (string, error) {
	s.declOrder++
	nodeID := b.newNodeID(s, "control")
	controlNode := Node{
		ID:               nodeID,
		Kind:             NodeControl,
		DeclarationOrder: s.declOrder,
	}

	thenIDs, err := b.branchArm(s, st.Body.List)
	if err != nil {
		return "", err
	}
	controlNode.Arms = append(controlNode.Arms, thenIDs)

	if st.Else != nil {
		var elseStmts []ast.Stmt
		switch e := st.Else.(type) {
		case *ast.BlockStmt:
			elseStmts = e.List
		case *ast.IfStmt:
			elseStmts = []ast.Stmt{e}
		}
		elseIDs, err := b.branchArm(s, elseStmts)
		if err != nil {
			return "", err
		}
		controlNode.Arms = append(controlNode.Arms, elseIDs)
	}

	s.nodes = append(s.nodes, controlNode)
	for _, arm := range controlNode.Arms {
		for _, id := range arm {
			s.edges = append(s.edges, Edge{From: nodeID, To: id, Kind: EdgeOrder})
		}
	}
	return nodeID, nil
}

func (b *Builder) branchArm(s *buildState, stmts []ast.Stmt) ([]string, error) {
	before := len(s.nodes)
	if err := b.walkStmts(s, stmts); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.nodes)-before)
	for _, n := range s.nodes[before:] {
		ids = append(ids, n.ID)
	}
	return ids, nil
}

func (b *Builder) handleLoop(s *buildState, body []ast.Stmt, loopType LoopType, cond string) (string, error) {
	s.declOrder++
	loopID := b.newNodeID(s, "loop")
	nodeID := b.newNodeID(s, "control")
	controlNode := Node{
		ID:               nodeID,
		Kind:             NodeControl,
		LoopID:           loopID,
		LoopType:         loopType,
		LoopCondition:    cond,
		DeclarationOrder: s.declOrder,
	}

	bodyIDs, err := b.branchArm(s, body)
	if err != nil {
		return "", err
	}
	// tag every task produced inside the loop body with the loop id, so
	// the planner can annotate dependsOn tasks with loopId/loopType.
	for i := range s.nodes {
		for _, id := range bodyIDs {
			if s.nodes[i].ID == id {
				s.nodes[i].LoopID = loopID
				s.nodes[i].LoopType = loopType
			}
		}
	}
	controlNode.Arms = [][]string{bodyIDs}
	s.nodes = append(s.nodes, controlNode)
	for _, id := range bodyIDs {
		s.edges = append(s.edges, Edge{From: nodeID, To: id, Kind: EdgeOrder})
	}
	return nodeID, nil
}

// toolSelector extracts "namespace:action" from an mcp.namespace.action(...)
// call expression.
func toolSelector(call *ast.CallExpr) (string, bool) {
	outer, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return "", false
	}
	inner, ok := outer.X.(*ast.SelectorExpr)
	if !ok {
		return "", false
	}
	root, ok := inner.X.(*ast.Ident)
	if !ok || root.Name != "mcp" {
		return "", false
	}
	return inner.Sel.Name + ":" + outer.Sel.Name, true
}

func keyString(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.BasicLit:
		if e.Kind == token.STRING {
			v, err := strconv.Unquote(e.Value)
			if err == nil {
				return v
			}
		}
		return e.Value
	case *ast.Ident:
		return e.Name
	default:
		return ""
	}
}

func literalValue(lit *ast.BasicLit) interface{} {
	switch lit.Kind {
	case token.STRING:
		if v, err := strconv.Unquote(lit.Value); err == nil {
			return v
		}
		return lit.Value
	case token.INT:
		if v, err := strconv.ParseInt(lit.Value, 10, 64); err == nil {
			return v
		}
		return lit.Value
	case token.FLOAT:
		if v, err := strconv.ParseFloat(lit.Value, 64); err == nil {
			return v
		}
		return lit.Value
	default:
		return lit.Value
	}
}

func exprString(expr ast.Expr) string {
	if expr == nil {
		return ""
	}
	var sb strings.Builder
	if err := printer.Fprint(&sb, token.NewFileSet(), expr); err != nil {
		return ""
	}
	return sb.String()
}
