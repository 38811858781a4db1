/*
Package jwt provides signature verification and claims set validation for JSON Web Tokens (JWT)
of the JSON Web Signature (JWS) form.

JWT claims set validation provided by the package includes the option to validate
all registered claim names defined in https://tools.ietf.org/html/rfc7519#section-4.1.

JOSE header validation provided by the package includes the option to validate the "alg"
(Algorithm) Header Parameter defined in https://tools.ietf.org/html/rfc7515#section-4.1.

JWT signature verification is provided by the KeySet interface. The package provides a
KeySet implementation that verifies signatures with keys fetched by key id from a JWKS URL
and cached between calls, and one that verifies with a static set of PEM-encoded public keys.
A key is only used for tokens whose "alg" belongs to the key's family and, when the JWK
publishes one, matches the JWK's own "alg".
*/
package jwt
