// Package smcogtrees builds a phylogenetic tree for every CDS classified into
// an smCOG family and renders one PNG per tree. Tree construction is the
// expensive step and is cached in the archive as newick; images are redrawn
// from the cached trees during the write phase.
package smcogtrees
