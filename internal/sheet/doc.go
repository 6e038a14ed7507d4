// Package sheet defines the cell, rectangle and sheet input types shared by
// region detection, schema extraction and context assembly.
//
// Cell values are a closed tagged variant (Value). Host values of unknown
// shape are never stringified through their own String or Format methods;
// they render as a fixed marker instead, so a hostile object cannot inject
// text into a prompt.
//
// Ranges use the A1 text form:
//
//	[ 'Sheet Name' | SheetName ]!<StartCell>[:<EndCell>]
//
// Rect coordinates are 0-based and inclusive.
package sheet
