// Package jsonvalue implements an order-preserving JSON value tree.
//
// encoding/json unmarshals objects into Go maps, which discard key
// insertion order. The tool-call parser's diffing requires a canonical,
// stable serialization of partially-parsed argument objects, which in
// turn requires remembering the order keys were first observed.
package jsonvalue
