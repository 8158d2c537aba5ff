// Package datatypes provides the IRIs of the builtin property data types.
//
// The builtin types are declared by the datatypes model that ships embedded
// with the bootstrap package. Other models import the namespace with the
// conventional prefix "d" and refer to the types as d:text, d:int and so on.
//
// # Value kinds
//
// Every data type names the Go kind of its values:
//
//	d:text, d:mltext, d:qname, d:noderef, d:locale → string
//	d:int, d:long                                  → int64
//	d:float, d:double                              → float64
//	d:date, d:datetime                             → time.Time
//	d:boolean                                      → bool
//	d:content                                      → content reference
//	d:any                                          → any
//
// d:content is special: properties of that type are always single valued.
package datatypes
