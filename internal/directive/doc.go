// Package directive parses the device directive string into resolved
// per-device configurations plus the final default applied to devices
// discovered at runtime.
//
// A directive is a whitespace-separated sequence of entries. An entry with an
// empty path before the colon (":600s") updates the running default; an entry
// with a path ("/dev/sda:300v") derives its configuration from the running
// default as it stood at that point in the sequence; a bare path inherits the
// running default verbatim. Resolution is a pure function of the input string
// and performs no device I/O.
package directive
