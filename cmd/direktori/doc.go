// Command direktori runs and administers worker pools that submit business
// registry profiling results through the registry's web form.
//
// "direktori run" claims items from the shared queue until it drains;
// "direktori queue ..." inspects and repairs queue rows; "direktori debug"
// replays a single item without touching its status.
package main
