// Package main is the entry point for billgate, a subscription billing
// engine: it generates invoices and proformas from subscription plans and
// metered usage, and collects them through payment processors.
package main

func main() {
	Execute()
}
