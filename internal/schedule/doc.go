// Package schedule keeps devices in line with their weekly on/off plans.
//
// A plan lists the days it applies on (D L M X J V S, Sunday first) and
// the HH:MM slots the device should be on. Once a minute the Evaluator
// compares each planned device's last reported state with what the plan
// wants and sends a command when they differ:
//
//   - inside a slot the device should be on;
//   - outside every slot it should be off, but only if the evaluator turned
//     it on or the plan sets EnforceOutsideSlot;
//   - for an hour after a manual command nothing is corrected.
//
// Commands are fire-and-forget. The next sweep notices if one was lost.
package schedule
