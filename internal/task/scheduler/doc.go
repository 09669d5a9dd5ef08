// Package scheduler registers interval and daily triggers on robfig/cron and
// hands each trigger to the task engine. It never runs jobs itself.
package scheduler
