package accounts

import "sort"

// Node is an account with its resolved children and an aggregated balance.
type Node struct {
	Account  Account
	Balance  float64
	Children []*Node
}

// BuildTree groups accounts into a forest by parent id. A node whose parent
// id points at an account that is not part of the input attaches as a root
// instead of failing, so partially loaded charts still render.
func BuildTree(accounts []Account) []*Node {
	nodes := make(map[int64]*Node, len(accounts))
	for _, acc := range accounts {
		nodes[acc.ID] = &Node{Account: acc}
	}
	var roots []*Node
	for _, acc := range accounts {
		node := nodes[acc.ID]
		if acc.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*acc.ParentID]
		if !ok {
			// Orphaned parent reference, keep the node reachable.
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Account.Code < nodes[j].Account.Code
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// ComputeGroupBalances assigns leaf balances from the supplied map and rolls
// them up into group accounts. The roll-up runs as a fixed-point iteration,
// re-summing direct children until no group balance changes, which handles
// arbitrary tree depth without a topological sort.
func ComputeGroupBalances(forest []*Node, leafBalances map[int64]float64) {
	var all []*Node
	var collect func(n *Node)
	collect = func(n *Node) {
		all = append(all, n)
		for _, c := range n.Children {
			collect(c)
		}
	}
	for _, root := range forest {
		collect(root)
	}

	for _, n := range all {
		if !n.Account.IsGroup {
			n.Balance = leafBalances[n.Account.ID]
		} else {
			n.Balance = 0
		}
	}

	for {
		changed := false
		for _, n := range all {
			if !n.Account.IsGroup {
				continue
			}
			var sum float64
			for _, c := range n.Children {
				sum += c.Balance
			}
			if sum != n.Balance {
				n.Balance = sum
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// Flatten returns every node of the forest in depth-first order.
func Flatten(forest []*Node) []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		out = append(out, n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, root := range forest {
		walk(root)
	}
	return out
}
