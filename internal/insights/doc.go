// Package insights answers questions about an indexed codebase with a
// language model and summarizes what the index holds.
package insights
