package ast

// Walk traverses the tree rooted at n in depth-first preorder, calling
// visit for each node.  If visit returns false, the node's children are
// skipped.  Nil children are not visited.
func Walk(n Node, visit func(Node) bool) {
	if n == nil || isNilNode(n) {
		return
	}
	if !visit(n) {
		return
	}
	switch n := n.(type) {
	case *Query:
		Walk(n.Body, visit)
	case *Operation:
		for _, operand := range n.Operands {
			Walk(operand, visit)
		}
	case *MemberAccess:
		Walk(n.Operand, visit)
	case *AnonymousObject:
		for _, p := range n.Properties {
			Walk(p, visit)
		}
	case *AnonymousObjectProperty:
		Walk(n.Value, visit)
	case *Reference, *Literal:
	}
}

// Children returns the direct children of n in source order.
func Children(n Node) []Node {
	var out []Node
	add := func(c Node) {
		if c != nil && !isNilNode(c) {
			out = append(out, c)
		}
	}
	switch n := n.(type) {
	case *Query:
		add(n.Body)
	case *Operation:
		for _, operand := range n.Operands {
			add(operand)
		}
	case *MemberAccess:
		add(n.Operand)
	case *AnonymousObject:
		for _, p := range n.Properties {
			add(p)
		}
	case *AnonymousObjectProperty:
		add(n.Value)
	}
	return out
}
