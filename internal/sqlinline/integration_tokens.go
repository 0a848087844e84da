package sqlinline

// QSelectIntegrationToken returns the stored API key of one backend.
const QSelectIntegrationToken = `--sql 72433eed-fd78-4d4f-87b4-18d571ef320a
select token
from integration_tokens
where provider = $1::text;
`

// QUpsertIntegrationToken replaces the key of a backend. $3 carries
// free-form properties such as the environment variable it shadows.
const QUpsertIntegrationToken = `--sql c1f7088e-f57c-4f73-8d3a-b203de422901
insert into integration_tokens (provider, token, properties)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
