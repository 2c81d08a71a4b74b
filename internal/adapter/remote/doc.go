// Package remote talks to an orcastream gateway from outside the process: the resource catalog
// over HTTP and live channels over the centrifuge protocol.
package remote
