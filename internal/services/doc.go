// Package services holds cross-cutting helpers shared by queue consumers:
// sentinel error markers used to classify failures for retry disposition,
// and context plumbing that tags log lines with task and worker identity.
package services
