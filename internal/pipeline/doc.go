// Package pipeline implements the executors that turn a task's input into an
// output artifact: Caption, Merge and BackgroundMusic.
//
// Every executor runs the same three stages: acquire inputs into a private
// temporary workspace, transform them with external media tools, and place the
// result in the output directory under its deterministic artifact name. The
// workspace is removed whether the execution succeeds or fails. Placement writes
// a ".partial" file first and renames it, so a visible artifact is always
// complete.
//
// Errors are returned as *domain.TaskError values carrying a failure kind and the
// failing stage; deadline errors are left unwrapped so the scheduler classifies
// them as timeouts.
package pipeline
