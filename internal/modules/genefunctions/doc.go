// Package genefunctions classifies CDS features into smCOG families and
// gene-function categories using a keyword reference table. Its results feed
// the smCOG tree and summary modules.
package genefunctions
