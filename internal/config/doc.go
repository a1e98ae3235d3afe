// Package config defines the values a cluster is constructed from, the
// logger they describe, and the interface for loading run requests from
// configuration files.
//
// Concrete loaders, such as the HCL one, are provided in separate packages.
package config
