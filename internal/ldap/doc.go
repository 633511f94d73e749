/*
Package ldap reads user records from an LDAP or Active Directory server for
identity synchronisation.

# Architecture Overview

  - Client: a single lazily opened connection with server failover, retry
    with exponential backoff, and simple, Kerberos (GSSAPI) or external bind
  - Directory: login lookups over a Client, mapping entries through the
    configured fieldmap into identity.Record values
  - Handlers: GUID and SID conversion for binary Active Directory attributes

# Connection Management

Servers are given as ldap:// or ldaps:// URLs and tried in order. Plain
connections are upgraded with StartTLS when configured. Dial failures and
transient server errors are retried; authentication failures are not.

The package never writes to the directory.

# Lookups

Directory.Search builds a filter of the form

	(&<configured filter>(|(mail=term)(sAMAccountName=term)))

where each search field is either a fieldmap key or a raw attribute name.
The base DN and filter may contain the login placeholders %fu, %u, %d and
%dc (see LoginVars).

Records carry the entry DN under the reserved "_dn" key. objectGUID and
objectSid values are decoded to their string forms.

# Logging

All operations log through the "ldap" tflog subsystem. Bind credentials are
redacted with SanitizeFields before they reach a log line.
*/
package ldap
