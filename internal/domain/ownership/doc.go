// Package ownership models operator console sessions and the arbitration
// rule deciding whether a live console or the background monitor is
// responsible for alarm emission.
package ownership
