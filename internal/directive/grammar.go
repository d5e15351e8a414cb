package directive

// Grammar documents the directive syntax for help output.
const Grammar = `Entries are whitespace separated: [<device path>]:<flags> or a bare path.

flags:
    <number>  idle time in seconds before spinning down the drive; zero
              disables monitoring. At most one number per flag set.
    s         sync filesystems before spinning down
   -s         don't sync before spinning down
    S         sync filesystems when a spin-up is detected
   -S         don't sync on spin-up
    v         increase per-device verbosity (up to 3)
   -v         decrease per-device verbosity

An entry with an empty path updates the default flag set inherited by the
entries that follow it. The final default applies to drives discovered at
runtime. Example:

    :svv300 /dev/sda /dev/sdb:6000-sS-vv :-v600

configures /dev/sda as 300svv, /dev/sdb as 6000S, and later drives as 600sv.`
