// Package store holds the latest meter reading of every building in memory,
// together with a bounded history of past values for the profile chart.
// Entries expire when a building stops reporting for longer than the TTL.
package store
