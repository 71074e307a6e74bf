// Package di wires vectra components into a samber/do injector.
package di

import "github.com/samber/do/v2"

// Injector alias of do.Injector
type Injector = do.Injector

// RootScope alias of do.RootScope
type RootScope = do.RootScope

// New creates a root injector
var New = do.New

// NewWithOpts creates a root injector with options
var NewWithOpts = do.NewWithOpts

// Generic helpers cannot be re-exported as vars; call them through do:
//
//	injector := di.New()
//	di.RegisterCoreProviders(injector, di.ConfigOptions{ConfigFile: "vectra.yaml"})
//	ops := do.MustInvoke[client.Operations](injector)
